package client

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TransferredBytes tracks payload bytes moved by Get/Put
	TransferredBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapdav",
		Subsystem: "client",
		Name:      "transferred_bytes_total",
		Help:      "Total payload bytes transferred",
	}, []string{"direction"})
)

func init() {
	debug.Registry().MustRegister(TransferredBytes)
}
