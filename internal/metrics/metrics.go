// internal/metrics/metrics.go
// Prometheus instruments for the registry, the acceptor and the broker loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send outcomes, used as the "outcome" label of ClientSends.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeReaped    = "reaped"
)

var (
	// ConnectionsActive is the number of clients currently in the registry.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_activity_connections_active",
			Help: "WebSocket clients currently registered",
		},
	)

	ConnectionsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_activity_connections_accepted_total",
			Help: "WebSocket handshakes that completed and were registered",
		},
	)

	HandshakeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_activity_handshake_failures_total",
			Help: "WebSocket upgrade attempts that failed",
		},
	)

	// ClientSends counts per-recipient send attempts by outcome.
	ClientSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_activity_client_sends_total",
			Help: "Per-client send attempts by outcome (delivered, dropped, reaped)",
		},
		[]string{"outcome"},
	)

	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "live_activity_broadcast_duration_seconds",
			Help:    "Time to offer one event to every registered client",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	BrokerEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_activity_broker_events_total",
			Help: "Deliveries received from the broker",
		},
	)

	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_activity_decode_failures_total",
			Help: "Broker deliveries that could not be decoded and were discarded",
		},
	)

	BrokerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_activity_broker_reconnects_total",
			Help: "Broker consume attempts that ended in an error",
		},
	)

	// BrokerConnected is 1 while the ingestion loop is consuming.
	BrokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_activity_broker_connected",
			Help: "1 while consuming from the broker, 0 otherwise",
		},
	)
)
