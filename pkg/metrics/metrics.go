// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// PageFetchesTotal counts pagination fetches by cache and outcome.
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_page_fetches_total",
			Help: "Pagination fetches by cache and outcome",
		},
		[]string{"cache", "outcome"},
	)

	// BackendCallDuration tracks messaging backend round-trips.
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_backend_call_duration_seconds",
			Help:    "Messaging backend call duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "outcome"},
	)

	// SendsTotal counts outgoing message sends by final state.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_sends_total",
			Help: "Outgoing messages by delivery outcome",
		},
		[]string{"type", "outcome"},
	)

	// RealtimeEventsTotal counts routed live events.
	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_realtime_events_total",
			Help: "Live events received by type and route",
		},
		[]string{"type", "route"},
	)

	// RealtimeFramesDropped counts frames that could not be decoded.
	RealtimeFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_realtime_frames_dropped_total",
			Help: "Malformed live event frames",
		},
	)

	// UnreadConversations reports the active-set unread count.
	UnreadConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_unread_conversations",
			Help: "Active conversations flagged unread",
		},
	)

	// PollsTotal counts scheduled poll ticks by poller and outcome.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_polls_total",
			Help: "Scheduled poll ticks",
		},
		[]string{"poller", "outcome"},
	)

	// TransportEventsTotal counts live event transport state changes.
	TransportEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_transport_events_total",
			Help: "Live event transport state changes",
		},
		[]string{"transport", "state"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordPageFetch records the outcome of one pager fetch.
func RecordPageFetch(cache string, err error) {
	PageFetchesTotal.WithLabelValues(cache, outcome(err)).Inc()
}

// RecordBackendCall records a messaging backend round-trip.
func RecordBackendCall(operation string, err error, duration float64) {
	BackendCallDuration.WithLabelValues(operation, outcome(err)).Observe(duration)
}

// RecordSend records the final delivery state of an outgoing message.
func RecordSend(msgType, state string) {
	SendsTotal.WithLabelValues(msgType, state).Inc()
}

// RecordRealtimeEvent records a routed live event.
func RecordRealtimeEvent(eventType, route string) {
	RealtimeEventsTotal.WithLabelValues(eventType, route).Inc()
}

// RecordPoll records a poll tick.
func RecordPoll(poller string, err error) {
	PollsTotal.WithLabelValues(poller, outcome(err)).Inc()
}

// RecordTransportState records a live event transport state change.
func RecordTransportState(transport, state string) {
	TransportEventsTotal.WithLabelValues(transport, state).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
