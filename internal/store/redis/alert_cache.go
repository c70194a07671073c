// Package redis provides a Redis-based implementation of store.AlertCache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pgsentry/internal/config"
	"pgsentry/internal/domain"
	"pgsentry/internal/store"
)

const (
	storeName   = "redis"
	prefixAlert = "pgsentry:alert:"
)

// AlertCache implements store.AlertCache using Redis.
type AlertCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewAlertCache creates a new Redis-backed alert cache.
func NewAlertCache(cfg *config.RedisConfig) (*AlertCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewAlertCacheWithClient(client, cfg.AlertTTL), nil
}

// NewAlertCacheWithClient wraps an existing client.
func NewAlertCacheWithClient(client redis.UniversalClient, ttl time.Duration) *AlertCache {
	return &AlertCache{client: client, ttl: ttl}
}

// alertKey generates the Redis key for an alert event.
func alertKey(id int64) string {
	return prefixAlert + strconv.FormatInt(id, 10)
}

// Get returns the cached event, or nil, nil on a miss.
func (c *AlertCache) Get(ctx context.Context, id int64) (event *domain.AlertEvent, err error) {
	start := time.Now()
	defer func() { store.Observe(storeName, "read", start, err) }()

	data, err := c.client.Get(ctx, alertKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	event = &domain.AlertEvent{}
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}

	return event, nil
}

// Set caches an event for the configured TTL.
func (c *AlertCache) Set(ctx context.Context, event *domain.AlertEvent) (err error) {
	start := time.Now()
	defer func() { store.Observe(storeName, "write", start, err) }()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := c.client.Set(ctx, alertKey(event.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set alert: %w", err)
	}

	return nil
}

// Ping checks that Redis is reachable.
func (c *AlertCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *AlertCache) Close() error {
	return c.client.Close()
}
