package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_ticks_total",
		Help: "Completed sweep passes",
	})

	metricExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_sessions_expired_total",
		Help: "Sessions evicted by the sweeper",
	})

	metricPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_panics_total",
		Help: "Sweep passes that panicked and were recovered",
	})

	metricTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweeper_tick_duration_seconds",
		Help:    "Duration of a sweep pass",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
