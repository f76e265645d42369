package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ticketing/internal/domain/inbox"
)

type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

func (r *InboxRepository) SaveIfNotExists(ctx context.Context, e *inbox.Event) (bool, error) {
	const sql = `
		INSERT INTO inbox (consumer, event_id, subject, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (consumer, event_id) DO NOTHING
	`

	tag, err := db(ctx, r.pool).Exec(ctx, sql, e.Consumer, e.EventID, e.Subject)
	if err != nil {
		return false, fmt.Errorf("insert inbox event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
