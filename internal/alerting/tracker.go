// Package alerting ingests Alertmanager notifications and tracks which
// receivers still have to be told about each alert.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pgsentry/internal/domain"
	"pgsentry/internal/metrics"
	"pgsentry/internal/store"
)

// Skip reasons for webhook entries that are not ingested.
const (
	SkipMissingAlertname = "missing_alertname"
	SkipMissingTarget    = "missing_target"
	SkipUnknownTarget    = "unknown_target"
	SkipInvalidTimestamp = "invalid_timestamp"
)

// DefinitionSource looks up catalog metadata for an alert name.
type DefinitionSource interface {
	AlertDefinition(alias string) *domain.AlertDefinition
}

// TargetResolver resolves target aliases.
type TargetResolver interface {
	Resolve(alias string) (*domain.Target, error)
}

// Notifier is told about every ingested alert. Implementations must not
// block on delivery.
type Notifier interface {
	Notify(ctx context.Context, alert *domain.MappedAlert, target *domain.Target)
}

// IngestedAlert is one stored webhook entry with its pending receivers.
type IngestedAlert struct {
	Alert     *domain.MappedAlert
	Receivers []int64
}

// Tracker implements the alert lifecycle: ingestion, delivery bookkeeping
// and lookups.
type Tracker struct {
	repo     store.AlertRepository
	cache    store.AlertCache
	defs     DefinitionSource
	targets  TargetResolver
	notifier Notifier
	logger   *slog.Logger
}

// NewTracker creates a tracker. notifier may be nil.
func NewTracker(
	repo store.AlertRepository,
	cache store.AlertCache,
	defs DefinitionSource,
	targets TargetResolver,
	notifier Notifier,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		repo:     repo,
		cache:    cache,
		defs:     defs,
		targets:  targets,
		notifier: notifier,
		logger:   logger,
	}
}

// Ingest stores every usable entry of a webhook call and starts delivery to
// the target's receivers. Entries with a missing or unknown alert name,
// target or start time are skipped. A storage failure on one entry does not
// stop the others; all such failures are returned joined.
func (t *Tracker) Ingest(ctx context.Context, webhook *domain.AlertmanagerWebhook) ([]*IngestedAlert, error) {
	ingested := []*IngestedAlert{}
	var errs []error

	for i, raw := range webhook.Alerts {
		alertname := raw.Label("alertname")
		if alertname == "" {
			t.skip(i, SkipMissingAlertname, "")
			continue
		}
		targetAlias := raw.Label("target")
		if targetAlias == "" {
			t.skip(i, SkipMissingTarget, alertname)
			continue
		}
		target, err := t.targets.Resolve(targetAlias)
		if err != nil {
			t.skip(i, SkipUnknownTarget, alertname, "target", targetAlias)
			continue
		}
		startsAt, err := raw.StartsAt()
		if err != nil {
			t.skip(i, SkipInvalidTimestamp, alertname, "error", err)
			continue
		}

		result, err := t.ingestOne(ctx, raw, alertname, startsAt, target)
		if err != nil {
			errs = append(errs, fmt.Errorf("alert %s on %s: %w", alertname, targetAlias, err))
			continue
		}
		ingested = append(ingested, result)
	}

	return ingested, errors.Join(errs...)
}

func (t *Tracker) ingestOne(ctx context.Context, raw domain.RawAlert, alertname string, startsAt time.Time, target *domain.Target) (*IngestedAlert, error) {
	event := &domain.AlertEvent{
		TargetAlias: target.Alias,
		Alias:       alertname,
		Timestamp:   startsAt,
		Value:       map[string]any(raw),
	}
	if err := t.repo.CreateAlert(ctx, event); err != nil {
		return nil, err
	}
	if err := t.cache.Set(ctx, event); err != nil {
		t.logger.Warn("failed to cache alert", "alert_id", event.ID, "error", err)
	}

	mapped := domain.MapAlert(event, t.defs.AlertDefinition(alertname))
	metrics.AlertsIngestedTotal.WithLabelValues(target.Alias, mapped.Status).Inc()

	pending, err := t.StartDelivery(ctx, event.ID, target.Receivers)
	if err != nil {
		return nil, err
	}

	t.logger.Info("alert ingested",
		"alert_id", event.ID,
		"alert", alertname,
		"target", target.Alias,
		"status", mapped.Status,
		"receivers", len(pending),
	)

	if t.notifier != nil {
		t.notifier.Notify(ctx, mapped, target)
	}

	return &IngestedAlert{Alert: mapped, Receivers: pending}, nil
}

func (t *Tracker) skip(index int, reason, alertname string, attrs ...any) {
	metrics.AlertsSkippedTotal.WithLabelValues(reason).Inc()
	args := append([]any{"index", index, "reason", reason, "alert", alertname}, attrs...)
	t.logger.Warn("skipping webhook alert", args...)
}

// StartDelivery ensures each receiver has a pending delivery for the alert
// and returns all pending receivers in ascending order.
func (t *Tracker) StartDelivery(ctx context.Context, alertID int64, receivers []int64) ([]int64, error) {
	pending, err := t.repo.StartDelivery(ctx, alertID, receivers)
	if err != nil {
		return nil, err
	}
	metrics.DeliveriesStartedTotal.Add(float64(len(receivers)))
	return pending, nil
}

// StopDelivery marks the receivers' pending deliveries as delivered.
// Receivers without a pending delivery are ignored.
func (t *Tracker) StopDelivery(ctx context.Context, alertID int64, receivers []int64) error {
	changed, err := t.repo.StopDelivery(ctx, alertID, receivers)
	if err != nil {
		return err
	}
	metrics.DeliveriesFinishedTotal.Add(float64(changed))
	t.logger.Debug("delivery finished", "alert_id", alertID, "receivers", receivers, "changed", changed)
	return nil
}

// CheckDelivery lists alerts since the given time that still have pending
// receivers, ordered by alert ID.
func (t *Tracker) CheckDelivery(ctx context.Context, since time.Time) ([]*domain.GroupedDelivery, error) {
	pending, err := t.repo.PendingDeliveries(ctx, since)
	if err != nil {
		return nil, err
	}

	grouped := make([]*domain.GroupedDelivery, 0, len(pending))
	for _, p := range pending {
		mapped := domain.MapAlert(p.Alert, t.defs.AlertDefinition(p.Alert.Alias))
		grouped = append(grouped, &domain.GroupedDelivery{MappedAlert: *mapped, Receivers: p.Receivers})
	}
	return grouped, nil
}

// GetAlert returns the mapped alert with the given ID. Events are read
// through the cache.
func (t *Tracker) GetAlert(ctx context.Context, id int64) (*domain.MappedAlert, error) {
	event, err := t.cache.Get(ctx, id)
	if err != nil {
		t.logger.Warn("alert cache read failed", "alert_id", id, "error", err)
	}
	if event == nil {
		event, err = t.repo.GetAlert(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := t.cache.Set(ctx, event); err != nil {
			t.logger.Warn("failed to cache alert", "alert_id", id, "error", err)
		}
	}
	return domain.MapAlert(event, t.defs.AlertDefinition(event.Alias)), nil
}
