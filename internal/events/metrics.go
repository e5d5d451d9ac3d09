package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_events_published_total",
		Help: "Total number of events published to the bus",
	}, []string{"type"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_events_dropped_total",
		Help: "Total number of events dropped because a subscriber buffer was full",
	}, []string{"subscriber"})
)
