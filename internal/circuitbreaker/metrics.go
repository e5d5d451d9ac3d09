package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CurrentLevel exposes the breaker level (0=NORMAL .. 3=HALT).
	CurrentLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_breaker_level",
		Help: "Current circuit breaker level (0=NORMAL, 1=WARNING, 2=CAUTION, 3=HALT)",
	})

	// ConsecutiveFailures exposes the failure streak.
	ConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_breaker_consecutive_failures",
		Help: "Consecutive execution failures",
	})

	// DailyPnL exposes the accumulated daily realized P&L.
	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_breaker_daily_pnl_usd",
		Help: "Realized P&L accumulated in the current UTC day",
	})

	// TransitionsTotal counts level escalations by target level.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_breaker_transitions_total",
			Help: "Total breaker escalations, by target level",
		},
		[]string{"level"},
	)

	// PersistErrorsTotal counts failed state writes.
	PersistErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_breaker_persist_errors_total",
		Help: "Total failed breaker state persists",
	})
)
