package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_events_handled_total",
			Help: "OpenFlow events handled by kind",
		},
		[]string{"kind"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_events_dropped_total",
			Help: "OpenFlow events dropped because the dispatcher buffer was full",
		},
		[]string{"kind"},
	)

	flowsMonitored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offload_flows_monitored",
			Help: "Flows registered for control cycles",
		},
	)

	pollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_poll_errors_total",
			Help: "Failed stats and verification polls",
		},
		[]string{"poll"},
	)
)
