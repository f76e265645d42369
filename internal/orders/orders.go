// Package orders implements the orders service: the owner of the Order
// aggregate and of a read-only ticket mirror fed by ticket events. Orders
// move through the lifecycle purely by reacting to events; the only
// commands are create and cancel.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ticketing/internal/clock"
	"ticketing/internal/domain"
	"ticketing/internal/domain/inbox"
	"ticketing/internal/domain/outbox"
	"ticketing/internal/event"
	"ticketing/internal/infrastructure/postgres"
)

// Group is the service's queue-group and producer name.
const Group = "orders-service"

type OrderStore interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	// Insert must fail with domain.ErrTicketAlreadyReserved when another
	// non-terminal order already holds the same ticket.
	Insert(ctx context.Context, o *domain.Order) error
	Save(ctx context.Context, o *domain.Order, expectedVersion int) error
}

type TicketStore interface {
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)
	Insert(ctx context.Context, t *domain.Ticket) error
	Save(ctx context.Context, t *domain.Ticket, expectedVersion int) error
}

type InboxStore = inbox.Store

type Service struct {
	tx      postgres.Transactor
	orders  OrderStore
	tickets TicketStore
	outbox  outbox.Repository
	clock   clock.Clock
	window  time.Duration
}

func NewService(
	tx postgres.Transactor,
	orders OrderStore,
	tickets TicketStore,
	ob outbox.Repository,
	clk clock.Clock,
	expirationWindow time.Duration,
) *Service {
	return &Service{
		tx:      tx,
		orders:  orders,
		tickets: tickets,
		outbox:  ob,
		clock:   clk,
		window:  expirationWindow,
	}
}

type CreateParams struct {
	UserID   string
	TicketID string
}

// Create reserves a ticket for a user. The ticket snapshot comes from the
// local mirror; exclusivity is enforced by the store's conditional insert,
// so two concurrent reservations resolve to one winner.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Order, error) {
	var o *domain.Order

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := s.tickets.FindByID(ctx, params.TicketID)
		if err != nil {
			return err
		}

		o = &domain.Order{
			ID:          uuid.New().String(),
			UserID:      params.UserID,
			Status:      domain.OrderCreated,
			ExpiresAt:   s.clock.Now().Add(s.window),
			TicketID:    t.ID,
			TicketPrice: t.Price,
			Version:     0,
		}

		if err := s.orders.Insert(ctx, o); err != nil {
			return err
		}

		env, err := event.New(Group, event.OrderCreated{
			ID:        o.ID,
			Version:   o.Version,
			UserID:    o.UserID,
			Status:    string(o.Status),
			ExpiresAt: o.ExpiresAt,
			Ticket:    event.TicketRef{ID: o.TicketID, Price: o.TicketPrice},
		})
		if err != nil {
			return err
		}
		return outbox.Stage(ctx, s.outbox, env)
	})
	if err != nil {
		return nil, err
	}

	return o, nil
}

// Cancel is the user-initiated cancellation. Terminal orders reject it.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	var cancelled *domain.Order

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if userID != "" && o.UserID != userID {
			return fmt.Errorf("order %s: %w", o.ID, domain.ErrNotOwner)
		}
		if o.Status.Terminal() {
			return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, domain.ErrOrderTerminal)
		}

		o.Status = domain.OrderCancelled
		o.Version++

		if err := s.orders.Save(ctx, o, o.Version-1); err != nil {
			return err
		}
		if err := stageCancelled(ctx, s.outbox, o, event.Envelope{}); err != nil {
			return err
		}

		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.FindByID(ctx, id)
}

func stageCancelled(ctx context.Context, ob outbox.Repository, o *domain.Order, causedBy event.Envelope) error {
	env, err := event.New(Group, event.OrderCancelled{
		ID:      o.ID,
		Version: o.Version,
		Ticket:  event.TicketRef{ID: o.TicketID},
	})
	if err != nil {
		return err
	}
	if causedBy.ID != "" {
		env = env.Caused(causedBy)
	}
	return outbox.Stage(ctx, ob, env)
}
