// Package metrics exposes Prometheus instrumentation for the relay pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream connector metrics.
	UpstreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumprelay_upstream_reconnects_total",
			Help: "Total number of upstream reconnect attempts",
		},
	)

	NotificationsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumprelay_notifications_received_total",
			Help: "Total number of raw frames received from upstream",
		},
	)

	// Transformer metrics.
	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumprelay_events_rejected_total",
			Help: "Total number of notifications rejected by the transformer",
		},
		[]string{"stage"},
	)

	// Distribution hub metrics.
	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumprelay_events_published_total",
			Help: "Total number of canonical events published to the hub",
		},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumprelay_deliveries_dropped_total",
			Help: "Total number of per-consumer deliveries dropped due to full buffers",
		},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumprelay_connected_clients",
			Help: "Current number of connected downstream clients",
		},
	)
)
