package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offload_http_request_duration_seconds",
			Help:    "Time spent serving REST requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"server", "route"},
	)

	requestsRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_http_rate_limited_total",
			Help: "Number of REST requests rejected due to rate limiting",
		},
		[]string{"server"},
	)

	streamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offload_status_stream_clients",
			Help: "Websocket clients attached to the status stream",
		},
	)

	streamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offload_status_stream_dropped_total",
			Help: "Status stream messages dropped because a buffer was full",
		},
	)
)
