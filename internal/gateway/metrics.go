package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "Open websocket connections",
	})

	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Inbound requests by type and result code",
	}, []string{"type", "result"})

	metricNotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_notifications_sent_total",
		Help: "Outbound messages written to connections by type",
	}, []string{"type"})

	metricNotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_notifications_dropped_total",
		Help: "Outbound messages dropped before reaching a connection",
	}, []string{"reason"}) // queue_full, closed, write_error
)
