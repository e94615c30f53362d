package syncmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stocksync",
			Subsystem: "sync",
			Name:      "events_total",
			Help:      "Events processed by outcome.",
		},
		[]string{"outcome"},
	)

	conflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stocksync",
			Subsystem: "sync",
			Name:      "conflicts_detected_total",
			Help:      "Conflict records raised by type.",
		},
		[]string{"type"},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stocksync",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one sync pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stocksync",
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Pending events at the start of the last pass.",
		},
	)

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stocksync",
			Subsystem: "sync",
			Name:      "decisions_recorded_total",
			Help:      "Resolution choices written to the decision cache.",
		},
		[]string{"choice"},
	)
)
