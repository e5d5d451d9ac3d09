package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OrdersSubmittedTotal counts order submissions by side and type.
	OrdersSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_clob_orders_submitted_total",
			Help: "Total orders submitted to the CLOB",
		},
		[]string{"side", "order_type"},
	)

	// OrderOutcomesTotal counts classified order outcomes.
	OrderOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_clob_order_outcomes_total",
			Help: "Order outcomes by classification",
		},
		[]string{"outcome"},
	)

	// RequestDuration tracks CLOB request latency by endpoint.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "updown_clob_request_duration_seconds",
			Help:    "CLOB API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// RequestErrorsTotal counts transport-level request failures.
	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_clob_request_errors_total",
			Help: "Total CLOB request transport errors",
		},
		[]string{"endpoint"},
	)

	// CancelsTotal counts order cancellations.
	CancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_clob_cancels_total",
		Help: "Total order cancellations submitted",
	})

	// RateLimitWaitDuration tracks time spent waiting on the local limiter.
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_clob_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the local CLOB rate limiter",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
