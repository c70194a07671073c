package memory

import (
	"context"
	"sync"

	"pgsentry/internal/domain"
)

// AlertCache is an in-process implementation of store.AlertCache.
// Alert events are immutable, so entries never expire.
type AlertCache struct {
	mu     sync.RWMutex
	events map[int64]*domain.AlertEvent
}

// NewAlertCache creates an empty cache.
func NewAlertCache() *AlertCache {
	return &AlertCache{events: make(map[int64]*domain.AlertEvent)}
}

// Get returns the cached event, or nil, nil on a miss.
func (c *AlertCache) Get(ctx context.Context, id int64) (*domain.AlertEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	event, ok := c.events[id]
	if !ok {
		return nil, nil
	}
	return copyEvent(event), nil
}

// Set caches an event.
func (c *AlertCache) Set(ctx context.Context, event *domain.AlertEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events[event.ID] = copyEvent(event)
	return nil
}

// Close is a no-op for the in-memory cache.
func (c *AlertCache) Close() error {
	return nil
}
