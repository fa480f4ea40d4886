package session

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsCreated counts sessions built from scratch
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "session",
		Name:      "created_total",
		Help:      "Total number of transport sessions created",
	})

	// SessionsReused counts sessions taken from the pool
	SessionsReused = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "session",
		Name:      "reused_total",
		Help:      "Total number of transport sessions reused from the pool",
	})

	// SessionsDiscarded counts sessions closed instead of pooled
	SessionsDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "session",
		Name:      "discarded_total",
		Help:      "Total number of transport sessions closed instead of pooled",
	}, []string{"reason"}) // reason: "no_reuse", "caching_disabled", "clear"

	// SessionsIdle is the number of sessions waiting in the pool
	SessionsIdle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapdav",
		Subsystem: "session",
		Name:      "idle",
		Help:      "Number of idle transport sessions in the pool",
	})
)

func init() {
	debug.Registry().MustRegister(
		SessionsCreated,
		SessionsReused,
		SessionsDiscarded,
		SessionsIdle,
	)
}
