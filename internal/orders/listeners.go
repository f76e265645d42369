package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ticketing/internal/domain"
	"ticketing/internal/domain/inbox"
	"ticketing/internal/domain/outbox"
	"ticketing/internal/event"
	"ticketing/internal/infrastructure/postgres"
)

// TicketCreatedListener seeds the local ticket mirror.
type TicketCreatedListener struct {
	tx      postgres.Transactor
	tickets TicketStore
}

func NewTicketCreatedListener(tx postgres.Transactor, tickets TicketStore) *TicketCreatedListener {
	return &TicketCreatedListener{tx: tx, tickets: tickets}
}

func (l *TicketCreatedListener) Subject() event.Subject { return event.SubjectTicketCreated }
func (l *TicketCreatedListener) Group() string          { return Group }

func (l *TicketCreatedListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.TicketCreated](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := l.tickets.FindByID(ctx, p.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		return l.tickets.Insert(ctx, &domain.Ticket{
			ID:      p.ID,
			Title:   p.Title,
			Price:   p.Price,
			Version: p.Version,
		})
	})
}

// TicketUpdatedListener keeps the mirror current under the version guard:
// the event must carry exactly the mirror's version + 1. Older events are
// confirmed no-ops; skipped versions are conflicts that hold the ack until
// the missing update arrives and is applied.
type TicketUpdatedListener struct {
	tx      postgres.Transactor
	tickets TicketStore
}

func NewTicketUpdatedListener(tx postgres.Transactor, tickets TicketStore) *TicketUpdatedListener {
	return &TicketUpdatedListener{tx: tx, tickets: tickets}
}

func (l *TicketUpdatedListener) Subject() event.Subject { return event.SubjectTicketUpdated }
func (l *TicketUpdatedListener) Group() string          { return Group }

func (l *TicketUpdatedListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.TicketUpdated](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := l.tickets.FindByID(ctx, p.ID)
		if err != nil {
			return err
		}

		if p.Version <= t.Version {
			return nil
		}
		if p.Version != t.Version+1 {
			return fmt.Errorf("ticket %s: have v%d, event v%d: %w",
				t.ID, t.Version, p.Version, domain.ErrVersionConflict)
		}

		t.Title = p.Title
		t.Price = p.Price
		t.Version = p.Version
		return l.tickets.Save(ctx, t, p.Version-1)
	})
}

// ExpirationCompleteListener cancels an unpaid order when its expiration
// fires. Completion always wins: an expiration arriving after the order
// completed is acknowledged without mutation, regardless of arrival order.
type ExpirationCompleteListener struct {
	tx     postgres.Transactor
	orders OrderStore
	outbox outbox.Repository
}

func NewExpirationCompleteListener(tx postgres.Transactor, orders OrderStore, ob outbox.Repository) *ExpirationCompleteListener {
	return &ExpirationCompleteListener{tx: tx, orders: orders, outbox: ob}
}

func (l *ExpirationCompleteListener) Subject() event.Subject { return event.SubjectExpirationComplete }
func (l *ExpirationCompleteListener) Group() string          { return Group }

func (l *ExpirationCompleteListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.ExpirationComplete](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := l.orders.FindByID(ctx, p.OrderID)
		if err != nil {
			return err
		}

		if o.Status.Terminal() {
			return nil
		}

		o.Status = domain.OrderCancelled
		o.Version++

		if err := l.orders.Save(ctx, o, o.Version-1); err != nil {
			return err
		}
		return stageCancelled(ctx, l.outbox, o, env)
	})
}

// PaymentCreatedListener completes the order once its payment exists.
// Payment events carry the payment's version, not the order's, so the
// version guard cannot apply; the inbox record deduplicates redeliveries
// inside the same transaction as the status change.
type PaymentCreatedListener struct {
	tx     postgres.Transactor
	orders OrderStore
	inbox  InboxStore
	log    *slog.Logger
}

func NewPaymentCreatedListener(tx postgres.Transactor, orders OrderStore, inbox InboxStore, log *slog.Logger) *PaymentCreatedListener {
	return &PaymentCreatedListener{tx: tx, orders: orders, inbox: inbox, log: log}
}

func (l *PaymentCreatedListener) Subject() event.Subject { return event.SubjectPaymentCreated }
func (l *PaymentCreatedListener) Group() string          { return Group }

func (l *PaymentCreatedListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.PaymentCreated](env)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		fresh, err := inbox.Record(ctx, l.inbox, Group, env)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		o, err := l.orders.FindByID(ctx, p.OrderID)
		if err != nil {
			return err
		}

		switch o.Status {
		case domain.OrderComplete:
			return nil
		case domain.OrderCancelled:
			// The payments service refuses cancelled orders, so this is a
			// cancel/pay race that slipped through. The order stays
			// cancelled; the payment needs a refund out of band.
			l.log.Warn("payment for cancelled order", "order_id", o.ID, "payment_id", p.ID)
			return nil
		}

		o.Status = domain.OrderComplete
		o.Version++
		return l.orders.Save(ctx, o, o.Version-1)
	})
}
