package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketing/internal/domain"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	const sql = `
		INSERT INTO payments (id, order_id, amount, version)
		VALUES ($1, $2, $3, $4)
	`

	_, err := db(ctx, r.pool).Exec(ctx, sql, p.ID, p.OrderID, p.Amount, p.Version)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// OrderMirrorRepository holds the payments service's orders table, a
// reduced copy replicated through order events.
type OrderMirrorRepository struct {
	pool *pgxpool.Pool
}

func NewOrderMirrorRepository(pool *pgxpool.Pool) *OrderMirrorRepository {
	return &OrderMirrorRepository{pool: pool}
}

func (r *OrderMirrorRepository) FindByID(ctx context.Context, id string) (*domain.OrderMirror, error) {
	const sql = `
		SELECT id, user_id, price, status, version
		FROM orders
		WHERE id = $1
	`

	var o domain.OrderMirror
	err := db(ctx, r.pool).QueryRow(ctx, sql, id).Scan(&o.ID, &o.UserID, &o.Price, &o.Status, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find order mirror: %w", err)
	}

	return &o, nil
}

func (r *OrderMirrorRepository) Insert(ctx context.Context, o *domain.OrderMirror) error {
	const sql = `
		INSERT INTO orders (id, user_id, price, status, version)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := db(ctx, r.pool).Exec(ctx, sql, o.ID, o.UserID, o.Price, o.Status, o.Version)
	if err != nil {
		return fmt.Errorf("insert order mirror: %w", err)
	}
	return nil
}

func (r *OrderMirrorRepository) Save(ctx context.Context, o *domain.OrderMirror, expectedVersion int) error {
	const sql = `
		UPDATE orders
		SET status = $2, version = $3
		WHERE id = $1 AND version = $4
	`

	tag, err := db(ctx, r.pool).Exec(ctx, sql, o.ID, o.Status, o.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("save order mirror: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s at version %d: %w", o.ID, expectedVersion, domain.ErrVersionConflict)
	}

	return nil
}
