// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectsTotal tracks connection attempts by outcome.
	ConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connects_total",
			Help: "Total connection attempts",
		},
		[]string{"outcome"},
	)

	// ReconnectsTotal tracks automatic reconnect attempts.
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "Total automatic reconnect attempts",
		},
	)

	// FramesTotal tracks protocol frames by type and direction.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_total",
			Help: "Total protocol frames processed",
		},
		[]string{"type", "direction"},
	)

	// RefreshesTotal tracks credential refresh calls by result.
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_token_refreshes_total",
			Help: "Total credential refresh calls",
		},
		[]string{"result"},
	)

	// EventsTotal tracks reconciled chat/notification events.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Total realtime events applied to local state",
		},
		[]string{"action", "outcome"},
	)

	// SubscriptionsActive tracks currently active topic subscriptions.
	SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscriptions_active",
			Help: "Number of active topic subscriptions",
		},
	)

	// UnreadMessages tracks the total unread count across all chats.
	UnreadMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_unread_messages",
			Help: "Total unread messages across all chats",
		},
	)
)

// RecordConnect records a connection attempt.
func RecordConnect(outcome string) {
	ConnectsTotal.WithLabelValues(outcome).Inc()
}

// RecordFrame records a processed protocol frame.
func RecordFrame(frameType, direction string) {
	FramesTotal.WithLabelValues(frameType, direction).Inc()
}

// RecordRefresh records a credential refresh result.
func RecordRefresh(result string) {
	RefreshesTotal.WithLabelValues(result).Inc()
}

// RecordEvent records a reconciled event.
func RecordEvent(action, outcome string) {
	EventsTotal.WithLabelValues(action, outcome).Inc()
}
