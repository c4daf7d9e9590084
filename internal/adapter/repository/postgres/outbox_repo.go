package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository. Events are written
// in the same transaction as the domain change they describe; a background
// dispatcher claims and publishes them afterwards.
type OutboxRepository struct {
	pool poolDB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Save inserts one outbox event within a transaction.
func (r *OutboxRepository) Save(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	return r.SaveAll(ctx, tx, []*domain.OutboxEvent{event})
}

// SaveAll inserts outbox events within a transaction.
func (r *OutboxRepository) SaveAll(ctx context.Context, tx usecase.Transaction, events []*domain.OutboxEvent) error {
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, payload, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			event.ID, event.EventType, event.AggregateType, event.AggregateID,
			event.Payload, string(event.Status), event.CreatedAt,
		)
	}

	results := pgxTxOf(tx).SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return results.Close()
}

// FindBatchForDispatch claims up to batchSize NEW events for one dispatcher
// worker and returns them as PROCESSING. SKIP LOCKED keeps concurrent
// workers from blocking on each other's claims; the claimed_by/claimed_at
// stamp makes crashed claims visible to the reclaimer.
func (r *OutboxRepository) FindBatchForDispatch(ctx context.Context, batchSize int, workerID string) ([]*domain.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE outbox_events
		SET status = $3, claimed_by = $2, claimed_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $4
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, aggregate_type, aggregate_id, payload, status, claimed_by, claimed_at, created_at`,
		batchSize, workerID, string(domain.OutboxStatusProcessing), string(domain.OutboxStatusNew),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// UpdateAll persists the status of dispatched events.
func (r *OutboxRepository) UpdateAll(ctx context.Context, events []*domain.OutboxEvent) error {
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			UPDATE outbox_events
			SET status = $2
			WHERE id = $1`,
			event.ID, string(event.Status),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return results.Close()
}

// ReclaimStuckClaims returns PROCESSING events whose claim is older than
// olderThan back to NEW so another worker can pick them up. Liveness after
// a dispatcher crash; downstream consumers own deduplication.
func (r *OutboxRepository) ReclaimStuckClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $1, claimed_by = NULL, claimed_at = NULL
		WHERE status = $2 AND claimed_at < now() - $3::interval`,
		string(domain.OutboxStatusNew), string(domain.OutboxStatusProcessing), olderThan.String(),
	)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

// Stats returns the outbox backlog broken down by status, plus the age of
// the oldest undelivered row in seconds. Serves the admin surface only.
func (r *OutboxRepository) Stats(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM outbox_events
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var oldestAge *float64
	err = r.pool.QueryRow(ctx, `
		SELECT EXTRACT(EPOCH FROM now() - MIN(created_at))
		FROM outbox_events
		WHERE status <> $1
	`, domain.OutboxStatusSent).Scan(&oldestAge)
	if err != nil {
		return nil, err
	}
	if oldestAge != nil {
		stats["oldest_undelivered_age_seconds"] = int64(*oldestAge)
	}

	return stats, nil
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var (
		event     domain.OutboxEvent
		status    string
		claimedBy *string
	)

	err := row.Scan(
		&event.ID, &event.EventType, &event.AggregateType, &event.AggregateID,
		&event.Payload, &status, &claimedBy, &event.ClaimedAt, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Status = domain.OutboxStatus(status)
	if claimedBy != nil {
		event.ClaimedBy = *claimedBy
	}

	return &event, nil
}
