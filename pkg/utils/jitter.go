package utils

import (
	"math/rand/v2"
	"time"
)

// JitterUp adds random jitter that only increases the duration.
// Retries use it so that clients failing together do not retry together.
//
// Example: JitterUp(time.Second, 0.2) returns 1s-1.2s (+0-20%)
func JitterUp(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || base <= 0 {
		return base
	}
	jitter := rand.Float64() * float64(base) * fraction
	return base + time.Duration(jitter)
}
