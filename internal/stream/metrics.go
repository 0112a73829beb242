package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks whether a stream connection is live.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexpulse_stream_active_connections",
		Help: "Number of active upstream stream connections",
	})

	// ReconnectAttemptsTotal tracks failover rounds attempted.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_stream_reconnect_attempts_total",
		Help: "Total number of stream failover rounds attempted",
	})

	// ReconnectFailuresTotal tracks failover rounds where every endpoint failed.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_stream_reconnect_failures_total",
		Help: "Total number of stream failover rounds that failed",
	})

	// EventsReceivedTotal tracks raw pool events by kind.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_stream_events_received_total",
			Help: "Total number of raw pool events received",
		},
		[]string{"kind"},
	)

	// MalformedDroppedTotal tracks unparseable payloads dropped at ingest.
	MalformedDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_stream_malformed_dropped_total",
		Help: "Total number of malformed event payloads dropped",
	})

	// SubscribedPools tracks registered pool subscriptions.
	SubscribedPools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexpulse_stream_subscribed_pools",
		Help: "Number of pools with active subscriptions",
	})
)
