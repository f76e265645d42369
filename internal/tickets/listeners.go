package tickets

import (
	"context"
	"fmt"

	"ticketing/internal/domain"
	"ticketing/internal/domain/outbox"
	"ticketing/internal/event"
	"ticketing/internal/infrastructure/postgres"
)

// OrderCreatedListener marks the reserved ticket with the order's id and
// republishes the ticket so every mirror learns about the new version.
// The mutation and the derived publish commit in one transaction.
type OrderCreatedListener struct {
	tx      postgres.Transactor
	tickets TicketStore
	outbox  outbox.Repository
}

func NewOrderCreatedListener(tx postgres.Transactor, tickets TicketStore, ob outbox.Repository) *OrderCreatedListener {
	return &OrderCreatedListener{tx: tx, tickets: tickets, outbox: ob}
}

func (l *OrderCreatedListener) Subject() event.Subject { return event.SubjectOrderCreated }
func (l *OrderCreatedListener) Group() string          { return Group }

func (l *OrderCreatedListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.OrderCreated](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := l.tickets.FindByID(ctx, p.Ticket.ID)
		if err != nil {
			return err
		}

		if t.OrderID == p.ID {
			// redelivery; reservation already recorded
			return nil
		}
		if t.Reserved() {
			// Two orders claiming one ticket means the orders service let a
			// double reservation through. Never acknowledge: this needs an
			// operator, not a silent drop.
			return fmt.Errorf("ticket %s held by order %s, order %s claims it: %w",
				t.ID, t.OrderID, p.ID, domain.ErrTicketAlreadyReserved)
		}

		t.OrderID = p.ID
		t.Version++

		if err := l.tickets.Save(ctx, t, t.Version-1); err != nil {
			return err
		}
		return stageUpdated(ctx, l.outbox, t, env)
	})
}

// OrderCancelledListener releases the reservation and republishes the
// ticket.
type OrderCancelledListener struct {
	tx      postgres.Transactor
	tickets TicketStore
	outbox  outbox.Repository
}

func NewOrderCancelledListener(tx postgres.Transactor, tickets TicketStore, ob outbox.Repository) *OrderCancelledListener {
	return &OrderCancelledListener{tx: tx, tickets: tickets, outbox: ob}
}

func (l *OrderCancelledListener) Subject() event.Subject { return event.SubjectOrderCancelled }
func (l *OrderCancelledListener) Group() string          { return Group }

func (l *OrderCancelledListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.OrderCancelled](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := l.tickets.FindByID(ctx, p.Ticket.ID)
		if err != nil {
			return err
		}

		if t.OrderID != p.ID {
			// already released, or the ticket moved on to another order
			return nil
		}

		t.OrderID = ""
		t.Version++

		if err := l.tickets.Save(ctx, t, t.Version-1); err != nil {
			return err
		}
		return stageUpdated(ctx, l.outbox, t, env)
	})
}
