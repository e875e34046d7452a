// Package metrics exposes Prometheus collectors for the relay and call sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Join results recorded by the relay.
const (
	JoinWaiting  = "waiting"
	JoinPaired   = "paired"
	JoinFull     = "full"
	JoinRejected = "rejected"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warpcall_relay_active_rooms",
		Help: "Rooms currently held by the relay.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warpcall_relay_connected_clients",
		Help: "Websocket clients currently connected to the relay.",
	})

	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_relay_joins_total",
		Help: "Join requests handled by the relay, by result.",
	}, []string{"result"})

	RelayedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_relay_messages_total",
		Help: "Signaling messages forwarded between room members, by type.",
	}, []string{"type"})

	DroppedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warpcall_relay_dropped_clients_total",
		Help: "Clients disconnected because their send buffer was full.",
	})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warpcall_sessions_started_total",
		Help: "Call sessions started by this process.",
	})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpcall_session_state_transitions_total",
		Help: "Call session state transitions.",
	}, []string{"from", "to"})
)

func RecordJoin(result string) {
	Joins.WithLabelValues(result).Inc()
}

func RecordRelayed(msgType string) {
	RelayedMessages.WithLabelValues(msgType).Inc()
}

func RecordTransition(from, to string) {
	StateTransitions.WithLabelValues(from, to).Inc()
}
