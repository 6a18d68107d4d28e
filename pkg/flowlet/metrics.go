package flowlet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowletTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offload_flowlet_transitions_total",
			Help: "New flowlets detected across all flows",
		},
	)

	groupTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_group_transactions_total",
			Help: "Group table transactions by operation and result",
		},
		[]string{"op", "result"},
	)

	tablesReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_tables_reconciled_total",
			Help: "Flows whose switch state no longer matched the splitter, by what was found",
		},
		[]string{"reason"},
	)
)
