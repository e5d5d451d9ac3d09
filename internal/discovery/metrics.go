package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MarketsDiscoveredTotal tracks markets found and activated.
	MarketsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_discovery_markets_total",
		Help: "Total up/down markets discovered",
	})

	// MarketsRetiredTotal tracks markets retired after their window closed.
	MarketsRetiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_discovery_markets_retired_total",
		Help: "Total markets retired at window end",
	})

	// ActiveMarkets tracks the number of currently active markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_discovery_active_markets",
		Help: "Number of markets currently active",
	})

	// LookupsTotal tracks slug lookups by result.
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_discovery_lookups_total",
			Help: "Total slug lookups by result",
		},
		[]string{"result"},
	)

	// LookupDuration tracks Gamma API request latency.
	LookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_discovery_lookup_duration_seconds",
		Help:    "Duration of Gamma API slug lookups",
		Buckets: prometheus.DefBuckets,
	})

	// RefreshDuration tracks full refresh cycle latency.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_discovery_refresh_duration_seconds",
		Help:    "Duration of one discovery refresh cycle",
		Buckets: prometheus.DefBuckets,
	})

	// RefreshErrorsTotal tracks lookup failures during refresh.
	RefreshErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_discovery_refresh_errors_total",
		Help: "Total lookup failures during refresh",
	})

	// ChannelDropsTotal tracks announcements dropped on full channels.
	ChannelDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_discovery_channel_drops_total",
			Help: "Total market announcements dropped",
		},
		[]string{"channel"},
	)
)
