package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketing/internal/domain"
)

// TicketRepository backs both the owning tickets service and the orders
// service's mirror; the mirror simply never sets order_id.
type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const sql = `
		SELECT id, title, price, COALESCE(order_id::text, ''), version
		FROM tickets
		WHERE id = $1
	`

	var t domain.Ticket
	err := db(ctx, r.pool).QueryRow(ctx, sql, id).Scan(&t.ID, &t.Title, &t.Price, &t.OrderID, &t.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}

	return &t, nil
}

func (r *TicketRepository) Insert(ctx context.Context, t *domain.Ticket) error {
	const sql = `
		INSERT INTO tickets (id, title, price, order_id, version)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5)
	`

	_, err := db(ctx, r.pool).Exec(ctx, sql, t.ID, t.Title, t.Price, t.OrderID, t.Version)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// Save is the conditional write: it applies only while the stored version
// still equals expectedVersion. Zero rows affected means another writer got
// there first (or the row is gone), surfaced as ErrVersionConflict so the
// caller aborts and relies on redelivery.
func (r *TicketRepository) Save(ctx context.Context, t *domain.Ticket, expectedVersion int) error {
	const sql = `
		UPDATE tickets
		SET title = $2, price = $3, order_id = NULLIF($4, '')::uuid, version = $5
		WHERE id = $1 AND version = $6
	`

	tag, err := db(ctx, r.pool).Exec(ctx, sql, t.ID, t.Title, t.Price, t.OrderID, t.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s at version %d: %w", t.ID, expectedVersion, domain.ErrVersionConflict)
	}

	return nil
}
