// Package metrics holds the Prometheus collectors shared by the bot's components.
// Collectors are registered with the default registry on package init, so any
// importer can record and the ops server can expose them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aitelegrambot"

// Outcome labels used across counters.
const (
	OutcomeOK     = "ok"
	OutcomeDenied = "denied"
	OutcomeEmpty  = "empty_argument"
	OutcomeError  = "error"
	OutcomePanic  = "panic"
)

var (
	// CommandsTotal counts handled commands by name and outcome.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of handled bot commands",
		},
		[]string{"command", "outcome"},
	)

	// StreamFlushes counts message edits issued by the stream reassembler.
	StreamFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "flushes_total",
			Help:      "Total number of outbound message edits by kind (periodic, final, failure)",
		},
		[]string{"kind"},
	)

	// StreamFlushErrors counts edits the transport rejected.
	StreamFlushErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "flush_errors_total",
			Help:      "Total number of failed outbound message edits by kind",
		},
		[]string{"kind"},
	)

	// StreamFragments counts fragments consumed from inference streams.
	StreamFragments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "fragments_total",
			Help:      "Total number of streamed text fragments consumed",
		},
	)

	// InferenceDuration observes end-to-end inference latency per mode.
	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of inference commands in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120, 240},
		},
		[]string{"mode"},
	)

	// ModelOperations counts list/change/pull/remove operations.
	ModelOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_operations_total",
			Help:      "Total number of model management operations",
		},
		[]string{"op", "outcome"},
	)

	// PullsInProgress tracks background model pulls.
	PullsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pulls_in_progress",
			Help:      "Background model pulls currently running",
		},
	)

	// TelegramRequests counts Bot API calls by method and outcome.
	TelegramRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "requests_total",
			Help:      "Total number of Telegram Bot API requests",
		},
		[]string{"method", "outcome"},
	)

	// UpdatesTotal counts updates received from long polling.
	UpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "updates_total",
			Help:      "Total number of updates received from getUpdates",
		},
	)

	// HTTPRequestsTotal, HTTPRequestDuration and HTTPInflight instrument the ops server.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	HTTPInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		StreamFlushes,
		StreamFlushErrors,
		StreamFragments,
		InferenceDuration,
		ModelOperations,
		PullsInProgress,
		TelegramRequests,
		UpdatesTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPInflight,
	)
}
