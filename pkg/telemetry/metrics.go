package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_telemetry_samples_total",
			Help: "Telemetry samples appended per interface",
		},
		[]string{"interface"},
	)

	samplesClamped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_telemetry_clamped_total",
			Help: "Telemetry values clamped into range per interface and field",
		},
		[]string{"interface", "field"},
	)

	probeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_telemetry_probe_failures_total",
			Help: "Failed delivery-ratio probes per interface",
		},
		[]string{"interface"},
	)
)
