// Package metrics exposes Prometheus instrumentation for the relay
// server on a dedicated listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "The current number of live WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})

	// Fan-out metrics
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_events_delivered_total",
		Help: "The total number of events enqueued to client connections.",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_events_dropped_total",
		Help: "The total number of events dropped because a client send buffer was full.",
	})
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_client_events_received_total",
		Help: "The total number of events received from clients.",
	})

	// Auth metrics
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_success_total",
		Help: "The total number of successful authentications.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "The total number of failed authentications.",
	}, []string{"reason"})

	// Assistant metrics
	AssistantRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_requests_total",
		Help: "The total number of assistant completion calls.",
	}, []string{"outcome"})
)
