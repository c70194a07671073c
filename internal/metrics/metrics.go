// Package metrics provides Prometheus metrics for pgsentry.
// It tracks action and view executions against targets, the alert
// ingestion pipeline and notification delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "pgsentry"
)

// Execution metrics track actions and views run against targets.
var (
	// ActionExecutionsTotal counts action runs by outcome.
	ActionExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_executions_total",
			Help:      "Total number of action executions",
		},
		[]string{"action", "target", "result"}, // result: success, failure, error
	)

	// ActionLatency measures the duration of a whole action run.
	ActionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_latency_seconds",
			Help:      "Duration of action executions in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"action"},
	)

	// StepFailuresTotal counts failed steps by kind and whether they were required.
	StepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Total number of failed action steps",
		},
		[]string{"kind", "required"},
	)

	// ViewExecutionsTotal counts view runs by outcome.
	ViewExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_executions_total",
			Help:      "Total number of view executions",
		},
		[]string{"view", "target", "result"},
	)

	// ViewRowsReturned tracks how many rows views return.
	ViewRowsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_rows_returned",
			Help:      "Number of rows returned per view execution",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 250, 500, 1000},
		},
	)
)

// Alert metrics track the alert lifecycle.
var (
	// AlertsIngestedTotal counts alert events stored from webhook calls.
	AlertsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_ingested_total",
			Help:      "Total number of alert events ingested",
		},
		[]string{"target", "status"},
	)

	// AlertsSkippedTotal counts webhook entries that were not ingested.
	AlertsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_skipped_total",
			Help:      "Total number of webhook alert entries skipped",
		},
		[]string{"reason"}, // reason: missing_alertname, missing_target, unknown_target, invalid_timestamp
	)

	// DeliveriesStartedTotal counts receivers put into pending state.
	DeliveriesStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_started_total",
			Help:      "Total number of alert deliveries started",
		},
	)

	// DeliveriesFinishedTotal counts receivers marked as delivered.
	DeliveriesFinishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_finished_total",
			Help:      "Total number of alert deliveries finished",
		},
	)
)

// Notification metrics track the email pipeline.
var (
	// NotificationsSentTotal counts notifications sent.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of notifications sent",
		},
		[]string{"channel", "status"}, // status: success, failure
	)

	// NotificationLatency measures time from alert ingestion to notification dispatch.
	NotificationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_latency_seconds",
			Help:      "Time from alert ingestion to notification dispatch in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

// Queue metrics track message queue health.
var (
	// QueueDepth tracks the current number of messages in the in-memory queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of messages in the queue",
		},
	)

	// QueuePublishLatency measures time to publish a message to the queue.
	QueuePublishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_publish_latency_seconds",
			Help:      "Time to publish a message to the queue in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// Storage metrics track database and cache operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"store", "operation"}, // store: postgres, redis; operation: read, write
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)
