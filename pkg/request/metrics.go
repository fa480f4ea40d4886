package request

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal tracks HTTP exchanges by method and status class
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests sent",
	}, []string{"method", "status"}) // status: "2xx", "3xx", "4xx", "5xx", "error"

	// RequestDuration tracks time from send to EndRequest
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapdav",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent in HTTP requests including the body transfer",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method"})
)

func init() {
	debug.Registry().MustRegister(
		RequestsTotal,
		RequestDuration,
	)
}
