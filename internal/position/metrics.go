package position

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OpenPositions gauges currently tracked positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_position_open",
		Help: "Number of open positions",
	})

	// RebalanceAttemptsTotal counts rebalance orders placed, by action.
	RebalanceAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_position_rebalance_attempts_total",
			Help: "Total rebalance orders placed, by action",
		},
		[]string{"action"},
	)

	// RebalanceFillsTotal counts rebalance fills, by action.
	RebalanceFillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_position_rebalance_fills_total",
			Help: "Total rebalance fills, by action",
		},
		[]string{"action"},
	)

	// RebalanceSkipsTotal counts imbalanced positions left alone, by reason.
	RebalanceSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_position_rebalance_skips_total",
			Help: "Total rebalance evaluations that took no action, by reason",
		},
		[]string{"reason"},
	)
)
