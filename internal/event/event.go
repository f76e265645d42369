package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrValidation marks a malformed or incomplete event payload. Listeners
// must not acknowledge a message that fails validation.
var ErrValidation = errors.New("invalid event payload")

// Subject is the fixed name of an event type. One Kafka topic per subject.
type Subject string

const (
	SubjectTicketCreated      Subject = "ticket-created"
	SubjectTicketUpdated      Subject = "ticket-updated"
	SubjectOrderCreated       Subject = "order-created"
	SubjectOrderCancelled     Subject = "order-cancelled"
	SubjectExpirationComplete Subject = "order-expiration-complete"
	SubjectPaymentCreated     Subject = "payment-created"
)

// Subjects lists every known subject. Used by tests and tooling that must
// stay exhaustive when a subject is added.
func Subjects() []Subject {
	return []Subject{
		SubjectTicketCreated,
		SubjectTicketUpdated,
		SubjectOrderCreated,
		SubjectOrderCancelled,
		SubjectExpirationComplete,
		SubjectPaymentCreated,
	}
}

// Envelope is the wire entity published to the bus. Payload is the JSON of
// one of the typed payloads below, self-describing via Subject.
type Envelope struct {
	ID            string          `json:"id"`
	Subject       Subject         `json:"subject"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	Producer      string          `json:"producer"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Payload is implemented by every typed event payload.
type Payload interface {
	EventSubject() Subject
	// AggregateID is the id of the aggregate the event describes. It keys
	// the Kafka partition so delivery stays ordered per aggregate.
	AggregateID() string
	Validate() error
}

type TicketRef struct {
	ID    string  `json:"id"`
	Price float64 `json:"price,omitempty"`
}

type TicketCreated struct {
	ID      string  `json:"id"`
	Version int     `json:"version"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
}

func (TicketCreated) EventSubject() Subject { return SubjectTicketCreated }
func (p TicketCreated) AggregateID() string { return p.ID }

func (p TicketCreated) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: ticket-created: missing id", ErrValidation)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: ticket-created: missing title", ErrValidation)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: ticket-created: negative price", ErrValidation)
	}
	return nil
}

type TicketUpdated struct {
	ID      string  `json:"id"`
	Version int     `json:"version"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	OrderID string  `json:"order_id,omitempty"`
}

func (TicketUpdated) EventSubject() Subject { return SubjectTicketUpdated }
func (p TicketUpdated) AggregateID() string { return p.ID }

func (p TicketUpdated) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: ticket-updated: missing id", ErrValidation)
	}
	if p.Version < 1 {
		return fmt.Errorf("%w: ticket-updated: version must be positive", ErrValidation)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: ticket-updated: missing title", ErrValidation)
	}
	return nil
}

type OrderCreated struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Ticket    TicketRef `json:"ticket"`
}

func (OrderCreated) EventSubject() Subject { return SubjectOrderCreated }
func (p OrderCreated) AggregateID() string { return p.ID }

func (p OrderCreated) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: order-created: missing id", ErrValidation)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: order-created: missing user_id", ErrValidation)
	}
	if p.Ticket.ID == "" {
		return fmt.Errorf("%w: order-created: missing ticket id", ErrValidation)
	}
	if p.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: order-created: missing expires_at", ErrValidation)
	}
	return nil
}

type OrderCancelled struct {
	ID      string    `json:"id"`
	Version int       `json:"version"`
	Ticket  TicketRef `json:"ticket"`
}

func (OrderCancelled) EventSubject() Subject { return SubjectOrderCancelled }
func (p OrderCancelled) AggregateID() string { return p.ID }

func (p OrderCancelled) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: order-cancelled: missing id", ErrValidation)
	}
	if p.Ticket.ID == "" {
		return fmt.Errorf("%w: order-cancelled: missing ticket id", ErrValidation)
	}
	return nil
}

type ExpirationComplete struct {
	OrderID string `json:"order_id"`
}

func (ExpirationComplete) EventSubject() Subject { return SubjectExpirationComplete }
func (p ExpirationComplete) AggregateID() string { return p.OrderID }

func (p ExpirationComplete) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: order-expiration-complete: missing order_id", ErrValidation)
	}
	return nil
}

type PaymentCreated struct {
	ID      string  `json:"id"`
	Version int     `json:"version"`
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

func (PaymentCreated) EventSubject() Subject { return SubjectPaymentCreated }
func (p PaymentCreated) AggregateID() string { return p.OrderID }

func (p PaymentCreated) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: payment-created: missing id", ErrValidation)
	}
	if p.OrderID == "" {
		return fmt.Errorf("%w: payment-created: missing order_id", ErrValidation)
	}
	return nil
}

// New builds an envelope around a validated payload.
func New(producer string, p Payload) (Envelope, error) {
	if err := p.Validate(); err != nil {
		return Envelope{}, err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", p.EventSubject(), err)
	}

	return Envelope{
		ID:         uuid.New().String(),
		Subject:    p.EventSubject(),
		Producer:   producer,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Caused returns a copy of the envelope stamped with the event that caused
// it, for derived events published by listeners.
func (e Envelope) Caused(by Envelope) Envelope {
	e.CausationID = by.ID
	e.CorrelationID = by.CorrelationID
	if e.CorrelationID == "" {
		e.CorrelationID = by.ID
	}
	return e
}

// Decode reconstitutes the typed payload of an envelope and validates it.
// The switch is exhaustive over Subjects(); an unknown subject is an
// ErrValidation, not a silent skip.
func Decode(e Envelope) (Payload, error) {
	var p Payload
	switch e.Subject {
	case SubjectTicketCreated:
		p = &TicketCreated{}
	case SubjectTicketUpdated:
		p = &TicketUpdated{}
	case SubjectOrderCreated:
		p = &OrderCreated{}
	case SubjectOrderCancelled:
		p = &OrderCancelled{}
	case SubjectExpirationComplete:
		p = &ExpirationComplete{}
	case SubjectPaymentCreated:
		p = &PaymentCreated{}
	default:
		return nil, fmt.Errorf("%w: unknown subject %q", ErrValidation, e.Subject)
	}

	if err := json.Unmarshal(e.Payload, p); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %v", ErrValidation, e.Subject, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// DecodeAs decodes the envelope and asserts the payload type, for listeners
// bound to a single subject.
func DecodeAs[T Payload](e Envelope) (T, error) {
	var zero T

	p, err := Decode(e)
	if err != nil {
		return zero, err
	}

	typed, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("%w: subject %s decoded to %T", ErrValidation, e.Subject, p)
	}
	return typed, nil
}
