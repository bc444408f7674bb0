// Package metrics declares the Prometheus collectors for the relay,
// following the teacher's internal/v1/metrics package: promauto-registered
// collectors under one namespace, grouped by subsystem, with small Inc/Dec
// helpers for the state every caller touches.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wsrelay"

var (
	// ActiveConnectionsGauge tracks the current registry size.
	ActiveConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// WebsocketFramesTotal counts inbound frames by kind: text, binary, ping.
	WebsocketFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total inbound WebSocket frames processed, by frame kind",
	}, []string{"kind"})

	// PongsReceivedTotal counts inbound pong frames.
	PongsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "pongs_received_total",
		Help:      "Total pong frames received",
	})

	// BroadcastSendFailuresTotal counts per-recipient write failures during
	// a registry-wide broadcast, by frame kind.
	BroadcastSendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "send_failures_total",
		Help:      "Total per-recipient send failures during a broadcast, by frame kind",
	}, []string{"kind"})

	// ActiveRoomsGauge tracks the current number of non-empty rooms.
	ActiveRoomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active (non-empty) rooms",
	})

	// RoomMembersGauge tracks membership count per room.
	RoomMembersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Current number of members in each room",
	}, []string{"room"})

	// RoomSendDroppedTotal counts room sends dropped before fan-out, by
	// reason (e.g. no_such_room).
	RoomSendDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "send_dropped_total",
		Help:      "Total room sends dropped before fan-out, by reason",
	}, []string{"reason"})

	// RoomSendFailuresTotal counts per-recipient write failures during a
	// room fan-out.
	RoomSendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "send_failures_total",
		Help:      "Total per-recipient send failures during room fan-out",
	})

	// RateLimitRejectedTotal counts handshakes rejected by the accept-time
	// rate limiter.
	RateLimitRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Total handshake attempts rejected by the rate limiter",
	})

	// AuthRejectedTotal counts handshakes rejected by the authenticator,
	// by reason (e.g. invalid_token, jwks_circuit_open).
	AuthRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "rejected_total",
		Help:      "Total handshake attempts rejected by the authenticator, by reason",
	}, []string{"reason"})
)

// IncActiveConnections increments the active connection gauge.
func IncActiveConnections() { ActiveConnectionsGauge.Inc() }

// DecActiveConnections decrements the active connection gauge.
func DecActiveConnections() { ActiveConnectionsGauge.Dec() }
