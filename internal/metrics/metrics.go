// Package metrics registers the engine's Prometheus collectors on the
// default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motionquiz_ws_connections",
			Help: "Live WebSocket connections on this instance",
		},
	)

	Rooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motionquiz_rooms",
			Help: "Rooms with at least one live connection on this instance",
		},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionquiz_broadcasts_total",
			Help: "Messages fanned out to rooms, by message type and origin",
		},
		[]string{"type", "origin"},
	)

	Dropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motionquiz_ws_dropped_total",
			Help: "Connections dropped because their send queue was full",
		},
	)

	Answers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionquiz_answers_total",
			Help: "Answer submissions by question type and outcome",
		},
		[]string{"question_type", "result"},
	)

	EvaluateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motionquiz_evaluate_duration_seconds",
			Help:    "Time spent evaluating and scoring one submission",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"question_type"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionquiz_session_transitions_total",
			Help: "Session state transitions by target state",
		},
		[]string{"to"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motionquiz_sessions_resident",
			Help: "Session controllers resident in memory",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionquiz_events_published_total",
			Help: "Lifecycle events handed to the broker, by routing key and result",
		},
		[]string{"routing_key", "result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
