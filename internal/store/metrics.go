package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "store_sessions_active",
		Help: "Sessions currently held in the store",
	})

	gaugeDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "store_devices_active",
		Help: "Devices currently registered",
	})

	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_sessions_created_total",
		Help: "Total sessions created",
	})

	metricSessionsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_sessions_removed_total",
		Help: "Sessions removed by reason (empty, removed)",
	}, []string{"reason"})

	metricFilesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_files_published_total",
		Help: "File metadata records appended to sessions",
	})

	metricCodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_code_collisions_total",
		Help: "Generated session codes rejected because they were in use",
	})

	metricBroadcastFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_broadcast_failures_total",
		Help: "Notifications that could not be handed to a member connection",
	}, []string{"type"})
)
