package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruuvi",
		Name:      "events_total",
		Help:      "Broadcast events by kind and triage outcome.",
	}, []string{"kind", "outcome"})

	sinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruuvi",
		Name:      "sink_writes_total",
		Help:      "Data point writes by sink and result.",
	}, []string{"sink", "result"})

	dispatchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ruuvi",
		Name:      "dispatches_in_flight",
		Help:      "Dispatched data points not yet written to all sinks.",
	})
)
