package payments

import (
	"context"
	"errors"
	"fmt"

	"ticketing/internal/domain"
	"ticketing/internal/event"
	"ticketing/internal/infrastructure/postgres"
)

// OrderCreatedListener replicates new orders into the local mirror.
type OrderCreatedListener struct {
	tx     postgres.Transactor
	orders OrderStore
}

func NewOrderCreatedListener(tx postgres.Transactor, orders OrderStore) *OrderCreatedListener {
	return &OrderCreatedListener{tx: tx, orders: orders}
}

func (l *OrderCreatedListener) Subject() event.Subject { return event.SubjectOrderCreated }
func (l *OrderCreatedListener) Group() string          { return Group }

func (l *OrderCreatedListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.OrderCreated](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := l.orders.FindByID(ctx, p.ID)
		if err == nil {
			// redelivery of a creation event already applied
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		return l.orders.Insert(ctx, &domain.OrderMirror{
			ID:      p.ID,
			UserID:  p.UserID,
			Price:   p.Ticket.Price,
			Status:  domain.OrderStatus(p.Status),
			Version: p.Version,
		})
	})
}

// OrderCancelledListener applies cancellations to the mirror under the
// version guard: only the exact next version mutates; older versions are
// confirmed no-ops, skipped versions force redelivery.
type OrderCancelledListener struct {
	tx     postgres.Transactor
	orders OrderStore
}

func NewOrderCancelledListener(tx postgres.Transactor, orders OrderStore) *OrderCancelledListener {
	return &OrderCancelledListener{tx: tx, orders: orders}
}

func (l *OrderCancelledListener) Subject() event.Subject { return event.SubjectOrderCancelled }
func (l *OrderCancelledListener) Group() string          { return Group }

func (l *OrderCancelledListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.OrderCancelled](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := l.orders.FindByID(ctx, p.ID)
		if err != nil {
			return err
		}

		if p.Version <= o.Version {
			return nil
		}
		if p.Version != o.Version+1 {
			return fmt.Errorf("order %s: have v%d, event v%d: %w",
				o.ID, o.Version, p.Version, domain.ErrVersionConflict)
		}

		o.Status = domain.OrderCancelled
		o.Version = p.Version
		return l.orders.Save(ctx, o, p.Version-1)
	})
}
