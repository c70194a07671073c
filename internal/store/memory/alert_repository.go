// Package memory provides in-memory implementations of the store interfaces.
// They are used in memory storage mode and in tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"pgsentry/internal/domain"
	"pgsentry/internal/store"
)

// AlertRepository is an in-memory implementation of store.AlertRepository.
// A single mutex serializes all operations, which makes delivery changes atomic.
type AlertRepository struct {
	mu sync.RWMutex

	// alerts stores all alert events by ID
	alerts map[int64]*domain.AlertEvent

	// deliveries stores delivery rows by alert ID, in insertion order
	deliveries map[int64][]*domain.AlertDelivery

	nextAlertID    int64
	nextDeliveryID int64
}

// NewAlertRepository creates a new in-memory alert repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		alerts:     make(map[int64]*domain.AlertEvent),
		deliveries: make(map[int64][]*domain.AlertDelivery),
	}
}

// CreateAlert stores a new alert event and assigns its ID.
func (r *AlertRepository) CreateAlert(ctx context.Context, event *domain.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextAlertID++
	event.ID = r.nextAlertID

	// Store a copy to prevent external modification
	r.alerts[event.ID] = copyEvent(event)
	return nil
}

// GetAlert retrieves an alert event by ID.
func (r *AlertRepository) GetAlert(ctx context.Context, id int64) (*domain.AlertEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.alerts[id]
	if !ok {
		return nil, domain.ErrAlertNotFound
	}
	return copyEvent(event), nil
}

// StartDelivery ensures a pending delivery for every receiver.
func (r *AlertRepository) StartDelivery(ctx context.Context, alertID int64, receivers []int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[alertID]; !ok {
		return nil, domain.ErrAlertNotFound
	}

	for _, receiver := range receivers {
		if r.findLocked(alertID, receiver, false) != nil {
			continue
		}
		if delivered := r.findLocked(alertID, receiver, true); delivered != nil {
			delivered.Delivered = false
			continue
		}
		r.nextDeliveryID++
		r.deliveries[alertID] = append(r.deliveries[alertID], &domain.AlertDelivery{
			ID:         r.nextDeliveryID,
			AlertID:    alertID,
			ReceiverID: receiver,
		})
	}

	return r.pendingLocked(alertID), nil
}

// StopDelivery marks pending deliveries of the receivers as delivered.
func (r *AlertRepository) StopDelivery(ctx context.Context, alertID int64, receivers []int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, receiver := range receivers {
		if pending := r.findLocked(alertID, receiver, false); pending != nil {
			pending.Delivered = true
			changed++
		}
	}
	return changed, nil
}

// PendingDeliveries returns alerts since the given time with pending receivers.
func (r *AlertRepository) PendingDeliveries(ctx context.Context, since time.Time) ([]store.PendingDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := slices.Collect(maps.Keys(r.deliveries))
	slices.Sort(ids)

	result := []store.PendingDelivery{}
	for _, id := range ids {
		event := r.alerts[id]
		if event == nil || event.Timestamp.Before(since) {
			continue
		}
		pending := r.pendingLocked(id)
		if len(pending) == 0 {
			continue
		}
		result = append(result, store.PendingDelivery{Alert: copyEvent(event), Receivers: pending})
	}
	return result, nil
}

// Deliveries returns a snapshot of all delivery rows of an alert.
// Useful for testing to verify row-level state.
func (r *AlertRepository) Deliveries(alertID int64) []domain.AlertDelivery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := make([]domain.AlertDelivery, 0, len(r.deliveries[alertID]))
	for _, d := range r.deliveries[alertID] {
		rows = append(rows, *d)
	}
	return rows
}

func (r *AlertRepository) findLocked(alertID, receiver int64, delivered bool) *domain.AlertDelivery {
	for _, d := range r.deliveries[alertID] {
		if d.ReceiverID == receiver && d.Delivered == delivered {
			return d
		}
	}
	return nil
}

func (r *AlertRepository) pendingLocked(alertID int64) []int64 {
	pending := []int64{}
	for _, d := range r.deliveries[alertID] {
		if !d.Delivered {
			pending = append(pending, d.ReceiverID)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	return pending
}

func copyEvent(event *domain.AlertEvent) *domain.AlertEvent {
	c := *event
	c.Value = maps.Clone(event.Value)
	return &c
}
