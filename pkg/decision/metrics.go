package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_decisions_total",
			Help: "Total control cycle decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	cycleLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offload_cycle_duration_seconds",
			Help:    "Time spent in one control cycle, negotiation included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	alphaChosen = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offload_alpha",
			Help:    "WiFi share chosen by offloading cycles",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	loadFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offload_load_fallbacks_total",
			Help: "Cycles that ran on a cached or default WiFi load",
		},
	)

	lteOffloadPriority = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offload_lte_priority",
			Help: "Offload priority of the flow's last cycle: 0 none, 1 check WiFi, 2 offload now",
		},
		[]string{"flow"},
	)

	flowRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offload_flow_remaining_mb",
			Help: "Remaining volume per monitored flow",
		},
		[]string{"flow"},
	)
)

func recordDecision(rec apis.DecisionRecord) {
	decisionsTotal.WithLabelValues(
		string(rec.Outcome),
		rec.Reason,
	).Inc()

	lteOffloadPriority.WithLabelValues(rec.Flow.String()).Set(float64(rec.OffloadPriority))

	if rec.LoadFallback {
		loadFallbacks.Inc()
	}
	if rec.Alpha > 0 {
		alphaChosen.Observe(rec.Alpha)
	}
}
