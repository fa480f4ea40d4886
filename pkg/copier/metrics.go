package copier

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "copier",
		Name:      "jobs_total",
		Help:      "Total copy jobs processed",
	}, []string{"result"})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zapdav",
		Subsystem: "copier",
		Name:      "job_duration_seconds",
		Help:      "Copy job duration",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapdav",
		Subsystem: "copier",
		Name:      "queue_depth",
		Help:      "Jobs waiting for a worker",
	})

	// ThirdPartyTransferred is the last byte count reported by remote
	// performance markers
	ThirdPartyTransferred = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "copier",
		Name:      "third_party_bytes_total",
		Help:      "Bytes reported transferred by third-party copies",
	})

	ThirdPartyCopies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "copier",
		Name:      "third_party_total",
		Help:      "Third-party copies by outcome",
	}, []string{"result"})
)

func init() {
	debug.Registry().MustRegister(JobsTotal, JobDuration, QueueDepth, ThirdPartyTransferred, ThirdPartyCopies)
}
