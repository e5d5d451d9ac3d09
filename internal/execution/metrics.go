package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ExecutionsTotal tracks joint execution outcomes by status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_exec_executions_total",
			Help: "Total dual-leg executions, by joint status",
		},
		[]string{"status"},
	)

	// LegOutcomesTotal tracks per-leg placement outcomes.
	LegOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_exec_leg_outcomes_total",
			Help: "Total leg placements, by outcome kind",
		},
		[]string{"outcome"},
	)

	// LiveAnomaliesTotal counts resting orders under FOK.
	LiveAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_exec_live_anomalies_total",
		Help: "Total FOK orders that came back live and were cancelled",
	})

	// StoreFailuresTotal counts trade persist failures.
	StoreFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_exec_store_failures_total",
		Help: "Total failed trade record persists",
	})

	// ExecutionDuration tracks wall time of one execution.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_exec_duration_seconds",
		Help:    "Duration of one dual-leg execution",
		Buckets: prometheus.DefBuckets,
	})
)
