package producer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsProducedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_produced_total",
		Help: "Total number of events produced per topic",
	},
	[]string{"topic"},
)
