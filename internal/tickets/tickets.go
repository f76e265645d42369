// Package tickets implements the tickets service: the owner of the Ticket
// aggregate. It exposes create/update commands and reacts to order events
// by marking or clearing the ticket's reservation.
package tickets

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ticketing/internal/domain"
	"ticketing/internal/domain/outbox"
	"ticketing/internal/event"
	"ticketing/internal/infrastructure/postgres"
)

// Group is the service's queue-group and producer name.
const Group = "tickets-service"

type TicketStore interface {
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)
	Insert(ctx context.Context, t *domain.Ticket) error
	Save(ctx context.Context, t *domain.Ticket, expectedVersion int) error
}

type Service struct {
	tx      postgres.Transactor
	tickets TicketStore
	outbox  outbox.Repository
}

func NewService(tx postgres.Transactor, tickets TicketStore, ob outbox.Repository) *Service {
	return &Service{tx: tx, tickets: tickets, outbox: ob}
}

type CreateParams struct {
	Title string
	Price float64
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Ticket, error) {
	t := &domain.Ticket{
		ID:      uuid.New().String(),
		Title:   params.Title,
		Price:   params.Price,
		Version: 0,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.Insert(ctx, t); err != nil {
			return err
		}

		env, err := event.New(Group, event.TicketCreated{
			ID:      t.ID,
			Version: t.Version,
			Title:   t.Title,
			Price:   t.Price,
		})
		if err != nil {
			return err
		}
		return outbox.Stage(ctx, s.outbox, env)
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

type UpdateParams struct {
	Title string
	Price float64
}

// Update edits title/price. A reserved ticket rejects edits: its state is
// referenced by an in-flight order.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*domain.Ticket, error) {
	var updated *domain.Ticket

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := s.tickets.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if t.Reserved() {
			return fmt.Errorf("ticket %s: %w", t.ID, domain.ErrTicketReserved)
		}

		t.Title = params.Title
		t.Price = params.Price
		t.Version++

		if err := s.tickets.Save(ctx, t, t.Version-1); err != nil {
			return err
		}

		if err := stageUpdated(ctx, s.outbox, t, event.Envelope{}); err != nil {
			return err
		}

		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.tickets.FindByID(ctx, id)
}

// stageUpdated publishes the ticket's current state as ticket-updated,
// stamped with the causing event when there is one.
func stageUpdated(ctx context.Context, ob outbox.Repository, t *domain.Ticket, causedBy event.Envelope) error {
	env, err := event.New(Group, event.TicketUpdated{
		ID:      t.ID,
		Version: t.Version,
		Title:   t.Title,
		Price:   t.Price,
		OrderID: t.OrderID,
	})
	if err != nil {
		return err
	}
	if causedBy.ID != "" {
		env = env.Caused(causedBy)
	}
	return outbox.Stage(ctx, ob, env)
}
