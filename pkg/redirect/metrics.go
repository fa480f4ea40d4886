package redirect

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RedirectLookups tracks chain resolutions by outcome
	RedirectLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "redirect",
		Name:      "lookups_total",
		Help:      "Total number of redirection cache lookups",
	}, []string{"result"}) // result: "hit", "miss", "loop"

	// RedirectEvictions tracks entries dropped to make room
	RedirectEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "redirect",
		Name:      "evictions_total",
		Help:      "Total number of redirection cache entries evicted",
	}, []string{"policy"})

	// RedirectEntries is the current cache size
	RedirectEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapdav",
		Subsystem: "redirect",
		Name:      "entries",
		Help:      "Number of cached redirections",
	})
)

func init() {
	debug.Registry().MustRegister(
		RedirectLookups,
		RedirectEvictions,
		RedirectEntries,
	)
}
