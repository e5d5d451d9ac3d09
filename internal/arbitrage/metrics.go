package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OpportunitiesDetectedTotal tracks opportunities enqueued.
	OpportunitiesDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_arb_opportunities_total",
		Help: "Total arbitrage opportunities detected",
	})

	// OpportunitiesDroppedTotal tracks opportunities dropped on a full queue.
	OpportunitiesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_arb_opportunities_dropped_total",
		Help: "Total opportunities dropped because the queue was full",
	})

	// EvaluationsTotal tracks evaluations that did not produce an
	// opportunity, by reason.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_arb_evaluations_total",
			Help: "Total book evaluations rejected, by reason",
		},
		[]string{"reason"},
	)

	// SpreadDetected observes the spread of detected opportunities.
	SpreadDetected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_arb_spread_usd",
		Help:    "Spread of detected opportunities in USD",
		Buckets: prometheus.LinearBuckets(0.01, 0.01, 10),
	})

	// DetectionDuration tracks time from update notification to decision.
	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_arb_detection_duration_seconds",
		Help:    "Time to evaluate one book update",
		Buckets: prometheus.ExponentialBuckets(0.000001, 2, 16),
	})
)
