package metaops

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OperationsTotal tracks exchanges sent by the chain
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "chain",
		Name:      "exchanges_total",
		Help:      "Total number of exchanges sent by meta operations",
	}, []string{"method", "status"})

	OperationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapdav",
		Subsystem: "chain",
		Name:      "exchange_latency_seconds",
		Help:      "Time to the answer head of meta operation exchanges",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// MetaOperations tracks completed meta operations by dialect and outcome
	MetaOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "chain",
		Name:      "operations_total",
		Help:      "Total number of meta operations",
	}, []string{"dialect", "op", "result"})

	OperationRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "chain",
		Name:      "retries_total",
		Help:      "Total number of automatic operation retries",
	})

	RedirectsFollowed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "chain",
		Name:      "redirects_followed_total",
		Help:      "Total number of live redirections followed",
	})
)

func init() {
	debug.Registry().MustRegister(
		OperationsTotal,
		OperationLatency,
		MetaOperations,
		OperationRetries,
		RedirectsFollowed,
	)
}
