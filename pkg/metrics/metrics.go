// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HookFailures counts post-commit stages that returned an error.
	HookFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hook_failures_total",
			Help: "Side-effect stages that failed after the primary mutation committed",
		},
		[]string{"module", "phase", "stage"},
	)

	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socket_connections_active",
			Help: "Number of open websocket connections",
		},
	)

	ChatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages persisted",
		},
		[]string{"kind"},
	)

	RemindersFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_fired_total",
			Help: "Reminders delivered by the scheduler",
		},
	)
)

func RecordRequest(method, path, status string, seconds float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(seconds)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

func RecordHookFailure(module, phase, stage string) {
	HookFailures.WithLabelValues(module, phase, stage).Inc()
}
