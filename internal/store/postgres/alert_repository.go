package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"pgsentry/internal/domain"
	"pgsentry/internal/store"
)

const storeName = "postgres"

// AlertRepository implements store.AlertRepository using PostgreSQL.
type AlertRepository struct {
	db *DB
}

// NewAlertRepository creates a new PostgreSQL-backed alert repository.
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateAlert stores a new alert event and assigns its ID.
func (r *AlertRepository) CreateAlert(ctx context.Context, event *domain.AlertEvent) (err error) {
	start := time.Now()
	defer func() { store.Observe(storeName, "write", start, err) }()

	query := `
		INSERT INTO alerts (target_alias, alias, timestamp, value)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err = r.db.pool.QueryRow(ctx, query,
		event.TargetAlias,
		event.Alias,
		event.Timestamp,
		event.Value,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetAlert retrieves an alert event by ID.
func (r *AlertRepository) GetAlert(ctx context.Context, id int64) (event *domain.AlertEvent, err error) {
	start := time.Now()
	defer func() { store.Observe(storeName, "read", start, err) }()

	query := `
		SELECT id, target_alias, alias, timestamp, value
		FROM alerts
		WHERE id = $1
	`

	event = &domain.AlertEvent{}
	err = r.db.pool.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.TargetAlias,
		&event.Alias,
		&event.Timestamp,
		&event.Value,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return event, nil
}

// StartDelivery ensures a pending delivery for every receiver. The alert row
// is locked for the duration of the transaction so concurrent calls for the
// same alert are serialized; the partial unique index on pending rows backs
// this up.
func (r *AlertRepository) StartDelivery(ctx context.Context, alertID int64, receivers []int64) (pending []int64, err error) {
	start := time.Now()
	defer func() { store.Observe(storeName, "write", start, err) }()

	receivers = uniqueSorted(receivers)

	err = pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM alerts WHERE id = $1 FOR UPDATE`, alertID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrAlertNotFound
			}
			return fmt.Errorf("failed to lock alert: %w", err)
		}

		for _, receiver := range receivers {
			// Reset one delivered row unless a pending one already exists.
			tag, err := tx.Exec(ctx, `
				UPDATE alert_deliveries SET delivered = FALSE
				WHERE id = (
					SELECT id FROM alert_deliveries
					WHERE alert_id = $1 AND receiver_id = $2 AND delivered
					ORDER BY id
					LIMIT 1
				)
				AND NOT EXISTS (
					SELECT 1 FROM alert_deliveries
					WHERE alert_id = $1 AND receiver_id = $2 AND NOT delivered
				)
			`, alertID, receiver)
			if err != nil {
				return fmt.Errorf("failed to reset delivery: %w", err)
			}
			if tag.RowsAffected() > 0 {
				continue
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO alert_deliveries (alert_id, receiver_id, delivered)
				VALUES ($1, $2, FALSE)
				ON CONFLICT (alert_id, receiver_id) WHERE NOT delivered DO NOTHING
			`, alertID, receiver)
			if err != nil {
				return fmt.Errorf("failed to insert delivery: %w", err)
			}
		}

		rows, err := tx.Query(ctx, `
			SELECT receiver_id FROM alert_deliveries
			WHERE alert_id = $1 AND NOT delivered
			ORDER BY receiver_id
		`, alertID)
		if err != nil {
			return fmt.Errorf("failed to list pending deliveries: %w", err)
		}
		pending, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("failed to scan pending deliveries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pending == nil {
		pending = []int64{}
	}
	return pending, nil
}

// StopDelivery marks pending deliveries of the receivers as delivered.
func (r *AlertRepository) StopDelivery(ctx context.Context, alertID int64, receivers []int64) (changed int, err error) {
	start := time.Now()
	defer func() { store.Observe(storeName, "write", start, err) }()

	query := `
		UPDATE alert_deliveries SET delivered = TRUE
		WHERE alert_id = $1 AND receiver_id = ANY($2) AND NOT delivered
	`

	tag, err := r.db.pool.Exec(ctx, query, alertID, receivers)
	if err != nil {
		return 0, fmt.Errorf("failed to stop delivery: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// PendingDeliveries returns alerts since the given time with pending receivers.
func (r *AlertRepository) PendingDeliveries(ctx context.Context, since time.Time) (result []store.PendingDelivery, err error) {
	start := time.Now()
	defer func() { store.Observe(storeName, "read", start, err) }()

	query := `
		SELECT a.id, a.target_alias, a.alias, a.timestamp, a.value,
			   array_agg(d.receiver_id ORDER BY d.receiver_id)
		FROM alerts a
		JOIN alert_deliveries d ON d.alert_id = a.id
		WHERE NOT d.delivered AND a.timestamp >= $1
		GROUP BY a.id
		ORDER BY a.id
	`

	rows, err := r.db.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	defer rows.Close()

	result = []store.PendingDelivery{}
	for rows.Next() {
		var (
			event     domain.AlertEvent
			receivers []int64
		)
		err := rows.Scan(
			&event.ID,
			&event.TargetAlias,
			&event.Alias,
			&event.Timestamp,
			&event.Value,
			&receivers,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending delivery: %w", err)
		}
		result = append(result, store.PendingDelivery{Alert: &event, Receivers: receivers})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending deliveries: %w", err)
	}

	return result, nil
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
