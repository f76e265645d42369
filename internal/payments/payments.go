// Package payments implements the payments service: a reduced mirror of
// orders kept current through order events, and the payment command that
// publishes payment-created.
package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ticketing/internal/domain"
	"ticketing/internal/domain/outbox"
	"ticketing/internal/event"
	"ticketing/internal/infrastructure/postgres"
)

// Group is the service's queue-group name; fixed so durable subscriptions
// resume after restarts. Doubles as the producer name on envelopes.
const Group = "payments-service"

type OrderStore interface {
	FindByID(ctx context.Context, id string) (*domain.OrderMirror, error)
	Insert(ctx context.Context, o *domain.OrderMirror) error
	Save(ctx context.Context, o *domain.OrderMirror, expectedVersion int) error
}

type PaymentStore interface {
	Insert(ctx context.Context, p *domain.Payment) error
}

type Service struct {
	tx       postgres.Transactor
	orders   OrderStore
	payments PaymentStore
	outbox   outbox.Repository
}

func NewService(tx postgres.Transactor, orders OrderStore, payments PaymentStore, ob outbox.Repository) *Service {
	return &Service{tx: tx, orders: orders, payments: payments, outbox: ob}
}

type CreateParams struct {
	OrderID string
	UserID  string
	Amount  float64
}

// Create charges an order. It refuses cancelled orders and amounts that do
// not match the mirrored price, then persists the payment and stages
// payment-created in one transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Payment, error) {
	pay := &domain.Payment{
		ID:      uuid.New().String(),
		OrderID: params.OrderID,
		Amount:  params.Amount,
		Version: 0,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.FindByID(ctx, params.OrderID)
		if err != nil {
			return err
		}
		if params.UserID != "" && o.UserID != params.UserID {
			return fmt.Errorf("order %s: %w", o.ID, domain.ErrNotOwner)
		}
		if o.Status == domain.OrderCancelled {
			return fmt.Errorf("order %s: %w", o.ID, domain.ErrOrderCancelled)
		}
		if params.Amount != o.Price {
			return fmt.Errorf("got %.2f, order price %.2f: %w", params.Amount, o.Price, domain.ErrAmountMismatch)
		}

		if err := s.payments.Insert(ctx, pay); err != nil {
			return err
		}

		env, err := event.New(Group, event.PaymentCreated{
			ID:      pay.ID,
			Version: pay.Version,
			OrderID: pay.OrderID,
			Amount:  pay.Amount,
		})
		if err != nil {
			return err
		}
		return outbox.Stage(ctx, s.outbox, env)
	})
	if err != nil {
		return nil, err
	}

	return pay, nil
}
