package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ticketing/internal/domain/outbox"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Create inserts the row through the context transaction when one is
// present; that is what makes the publish part of the mutation's commit.
func (r *OutboxRepository) Create(ctx context.Context, e *outbox.Event) error {
	const sql = `
		INSERT INTO outbox (id, subject, key, envelope, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := db(ctx, r.pool).Exec(ctx, sql, e.ID, e.Subject, e.Key, e.Envelope, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// staleClaim is how long a 'processing' row may sit before another relay
// pass reclaims it. A claim that old means the claimer died between claim
// and mark; re-publishing the row is absorbed by the idempotent listeners.
const staleClaim = time.Minute

// FetchBatch claims up to limit unpublished rows, including stale claims
// left behind by a crashed relay. SKIP LOCKED keeps concurrent relay
// instances off each other's claims.
func (r *OutboxRepository) FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error) {
	const sql = `
		WITH claimed AS (
			SELECT id
			FROM outbox
			WHERE status = 'new'
			   OR (status = 'processing' AND updated_at < NOW() - $2::interval)
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed)
		RETURNING id, subject, key, envelope, status, created_at, updated_at
	`

	rows, err := db(ctx, r.pool).Query(ctx, sql, limit, staleClaim)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var events []*outbox.Event
	for rows.Next() {
		e := &outbox.Event{}
		if err := rows.Scan(&e.ID, &e.Subject, &e.Key, &e.Envelope, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'processed', updated_at = NOW()
		WHERE id = ANY($1)
	`

	if _, err := db(ctx, r.pool).Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Release(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'new', updated_at = NOW()
		WHERE id = ANY($1)
	`

	if _, err := db(ctx, r.pool).Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("release outbox events: %w", err)
	}
	return nil
}
