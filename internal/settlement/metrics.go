package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ClaimsTotal counts claim attempts by terminal outcome.
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_settlement_claims_total",
			Help: "Total settlement claim attempts, by outcome",
		},
		[]string{"outcome"},
	)

	// ClaimProfitUSD accumulates realized claim profit. A gauge because
	// losing sides settle at a loss.
	ClaimProfitUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_settlement_claim_profit_usd",
		Help: "Cumulative realized profit from settlement claims in USD",
	})
)
