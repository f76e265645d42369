package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketing/internal/domain"
)

// OrderRepository owns the orders table of the orders service. Reservation
// exclusivity is the partial unique index ux_orders_active_ticket on
// (ticket_id) for non-terminal statuses: two concurrent creates race on the
// index, not on a read-then-check.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	const sql = `
		SELECT id, user_id, status, expires_at, ticket_id, ticket_price, version
		FROM orders
		WHERE id = $1
	`

	var o domain.Order
	err := db(ctx, r.pool).QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.UserID, &o.Status, &o.ExpiresAt, &o.TicketID, &o.TicketPrice, &o.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	return &o, nil
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	const sql = `
		INSERT INTO orders (id, user_id, status, expires_at, ticket_id, ticket_price, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := db(ctx, r.pool).Exec(ctx, sql,
		o.ID, o.UserID, o.Status, o.ExpiresAt, o.TicketID, o.TicketPrice, o.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("ticket %s: %w", o.TicketID, domain.ErrTicketAlreadyReserved)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *OrderRepository) Save(ctx context.Context, o *domain.Order, expectedVersion int) error {
	const sql = `
		UPDATE orders
		SET status = $2, version = $3
		WHERE id = $1 AND version = $4
	`

	tag, err := db(ctx, r.pool).Exec(ctx, sql, o.ID, o.Status, o.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s at version %d: %w", o.ID, expectedVersion, domain.ErrVersionConflict)
	}

	return nil
}
