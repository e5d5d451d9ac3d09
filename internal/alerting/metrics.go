package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// AlertsSentTotal counts delivered alerts by event type.
	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_alerting_sent_total",
			Help: "Total Telegram alerts sent, by event type",
		},
		[]string{"type"},
	)

	// AlertErrorsTotal counts failed sends.
	AlertErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_alerting_errors_total",
		Help: "Total Telegram send failures",
	})
)
