package negotiation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loadQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_wifi_load_queries_total",
			Help: "WiFi load queries by where the answer came from",
		},
		[]string{"source"},
	)

	negotiationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_negotiation_results_total",
			Help: "Confirm exchanges by result",
		},
		[]string{"result"},
	)

	grantsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offload_wifi_grants_total",
			Help: "Bandwidth grants issued by the WiFi domain",
		},
	)

	grantsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_wifi_grants_rejected_total",
			Help: "Confirm requests refused by the WiFi domain",
		},
		[]string{"reason"},
	)
)
