package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// UpdatesTotal tracks applied book updates by event type.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_book_updates_total",
			Help: "Total order book updates applied",
		},
		[]string{"event_type"},
	)

	// UpdatesDroppedTotal tracks updates dropped or ignored.
	UpdatesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_book_updates_dropped_total",
			Help: "Total order book updates dropped",
		},
		[]string{"reason"},
	)

	// MarketsTracked tracks the number of markets with live state.
	MarketsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_book_markets_tracked",
		Help: "Number of markets with tracked order book state",
	})

	// UpdateProcessingDuration tracks per-message processing time.
	UpdateProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_book_update_processing_seconds",
		Help:    "Time to process one order book message",
		Buckets: prometheus.ExponentialBuckets(0.000001, 2, 16),
	})

	// StaleMarketsTotal counts staleness detections.
	StaleMarketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_book_stale_markets_total",
		Help: "Total times a tracked market's book went stale",
	})

	// CurrentSpread exposes the latest computed spread per asset.
	CurrentSpread = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "updown_book_spread_usd",
			Help: "Latest 1 - yes_ask - no_ask per asset",
		},
		[]string{"asset"},
	)
)
