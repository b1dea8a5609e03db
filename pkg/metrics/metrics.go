// Package metrics provides Prometheus instrumentation for the analysis client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestDuration tracks backend request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rentcheck_api_request_duration_seconds",
			Help:    "Analysis service request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "status"},
	)

	// RequestsTotal tracks total backend requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentcheck_api_requests_total",
			Help: "Total analysis service requests",
		},
		[]string{"operation", "status"},
	)

	// PollsTotal tracks status polls by observed status.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentcheck_polls_total",
			Help: "Total analysis status polls",
		},
		[]string{"status"},
	)

	// ActivePolls tracks analyses currently being polled.
	ActivePolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rentcheck_active_polls",
			Help: "Number of analyses being polled",
		},
	)

	// TransitionsTotal tracks analysis status transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentcheck_transitions_total",
			Help: "Analysis status transitions",
		},
		[]string{"from", "to"},
	)

	// ChatMessagesTotal tracks chat sends by outcome.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentcheck_chat_messages_total",
			Help: "Chat messages sent",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for a backend request.
func RecordRequest(operation, status string, duration float64) {
	RequestDuration.WithLabelValues(operation, status).Observe(duration)
	RequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordPoll counts a status poll.
func RecordPoll(status string) {
	PollsTotal.WithLabelValues(status).Inc()
}

// RecordTransition counts a status transition.
func RecordTransition(from, to string) {
	TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordChat counts a chat send outcome ("ok" or "failed").
func RecordChat(outcome string) {
	ChatMessagesTotal.WithLabelValues(outcome).Inc()
}

// PollStarted increments the active poll gauge.
func PollStarted() {
	ActivePolls.Inc()
}

// PollStopped decrements the active poll gauge.
func PollStopped() {
	ActivePolls.Dec()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
