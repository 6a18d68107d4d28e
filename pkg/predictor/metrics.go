package predictor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	predictedThroughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offload_predicted_throughput_mbps",
			Help: "Last predicted throughput per interface",
		},
		[]string{"interface"},
	)

	scorerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_scorer_calls_total",
			Help: "Primary scorer calls by scorer and result",
		},
		[]string{"scorer", "result"},
	)
)
