// Package store defines interfaces for alert persistence and caching.
// These abstractions allow swapping implementations (PostgreSQL, Redis,
// in-memory) without changing business logic.
package store

import (
	"context"
	"time"

	"pgsentry/internal/domain"
	"pgsentry/internal/metrics"
)

// PendingDelivery is an alert event together with the receivers that have
// not been notified yet.
type PendingDelivery struct {
	Alert     *domain.AlertEvent
	Receivers []int64
}

// AlertRepository defines the interface for persistent alert storage.
// This is typically backed by PostgreSQL for production use.
// All methods must be safe for concurrent use.
type AlertRepository interface {
	// CreateAlert stores a new alert event and assigns its ID.
	CreateAlert(ctx context.Context, event *domain.AlertEvent) error

	// GetAlert retrieves an alert event by ID.
	// Returns domain.ErrAlertNotFound if it does not exist.
	GetAlert(ctx context.Context, id int64) (*domain.AlertEvent, error)

	// StartDelivery ensures a pending delivery exists for every receiver and
	// returns all pending receivers of the alert in ascending order.
	// An existing pending row is left untouched; otherwise a delivered row is
	// reset to pending, or a new one is inserted. The whole call is atomic.
	StartDelivery(ctx context.Context, alertID int64, receivers []int64) ([]int64, error)

	// StopDelivery marks pending deliveries of the receivers as delivered and
	// returns how many rows changed. Receivers without a pending row are ignored.
	StopDelivery(ctx context.Context, alertID int64, receivers []int64) (int, error)

	// PendingDeliveries returns alerts with timestamp >= since that still have
	// pending receivers, ordered by alert ID with receivers ascending.
	PendingDeliveries(ctx context.Context, since time.Time) ([]PendingDelivery, error)
}

// AlertCache is a read-through cache for immutable alert events.
type AlertCache interface {
	// Get returns the cached event, or nil, nil on a miss.
	Get(ctx context.Context, id int64) (*domain.AlertEvent, error)

	// Set caches an event.
	Set(ctx context.Context, event *domain.AlertEvent) error

	// Close releases any resources held by the cache.
	Close() error
}

// Observe records latency and outcome of a storage operation.
func Observe(storeName, operation string, start time.Time, err error) {
	metrics.StorageOperationLatency.WithLabelValues(storeName, operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues(storeName, operation, status).Inc()
}
