package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_consumed_total",
			Help: "Total number of command records consumed",
		},
		[]string{"topic", "status"},
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_processing_duration_seconds",
			Help:    "Command processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
