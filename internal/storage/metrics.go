package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	StoreWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_store_writes_total",
		Help: "Total number of successful store writes by table",
	}, []string{"table"})

	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_store_errors_total",
		Help: "Total number of store operation failures",
	}, []string{"operation"})
)
