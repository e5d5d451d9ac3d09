package liquidity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SnapshotsTotal counts persisted book snapshots.
	SnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_liquidity_snapshots_total",
		Help: "Total liquidity snapshots persisted",
	})
)
