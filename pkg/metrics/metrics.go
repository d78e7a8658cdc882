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
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhookBatchesTotal tracks webhook deliveries accepted for processing.
	WebhookBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_batches_total",
			Help: "Webhook deliveries accepted, by outcome",
		},
		[]string{"outcome"},
	)

	// EventsPublished tracks events enqueued to the billing stream.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_events_published_total",
			Help: "Events published to the billing stream",
		},
		[]string{"kind"},
	)

	// EventsProcessed tracks events consumed from the billing stream.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_events_processed_total",
			Help: "Events processed by the ingestion pipeline, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// EventsDuplicate counts idempotent no-ops on duplicate delivery.
	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_events_duplicate_total",
			Help: "Duplicate event deliveries skipped by the dedup marker",
		},
	)

	// MessagesIngested tracks persisted message records.
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_messages_ingested_total",
			Help: "Message records created by the pipeline",
		},
		[]string{"direction", "category"},
	)

	// RollupRuns tracks daily aggregation job executions.
	RollupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_rollup_runs_total",
			Help: "Daily rollup job runs, by outcome",
		},
		[]string{"outcome"},
	)

	// ConsumerPending tracks pending messages on the billing consumer.
	ConsumerPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_consumer_pending",
			Help: "Pending messages for the billing stream consumer",
		},
		[]string{"stream", "consumer"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
