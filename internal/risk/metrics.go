package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// AdmissionsTotal tracks opportunities admitted for execution.
	AdmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_risk_admissions_total",
		Help: "Total opportunities admitted",
	})

	// RejectionsTotal tracks rejections by reason.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_risk_rejections_total",
			Help: "Total opportunities rejected, by reason",
		},
		[]string{"reason"},
	)
)
