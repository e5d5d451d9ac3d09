package sizing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SizingsTotal tracks sizing outcomes by result.
	SizingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_sizing_total",
			Help: "Total sizing attempts, by result",
		},
		[]string{"result"},
	)

	// LiquidityCappedTotal counts pairs reduced by the depth cap.
	LiquidityCappedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_sizing_liquidity_capped_total",
		Help: "Total sizings reduced by the liquidity cap",
	})

	// PairCount observes the share count of sized pairs.
	PairCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_sizing_pair_count",
		Help:    "Share pairs per sized order",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
