package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticketing/internal/event"
)

const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Event is one outbox row: a serialized envelope committed in the same
// transaction as the aggregate mutation it describes. The relay publishes
// rows in creation order and marks them processed once the bus confirms.
type Event struct {
	ID        string        `json:"id"`
	Subject   event.Subject `json:"subject"`
	Key       string        `json:"key"`
	Envelope  []byte        `json:"envelope"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// From wraps an envelope into an outbox row keyed by the aggregate id
// carried in the envelope's payload.
func From(env event.Envelope) (*Event, error) {
	p, err := event.Decode(env)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return &Event{
		ID:        env.ID,
		Subject:   env.Subject,
		Key:       p.AggregateID(),
		Envelope:  raw,
		Status:    StatusNew,
		CreatedAt: env.OccurredAt,
	}, nil
}

// Stage wraps the envelope and inserts it through the repository, which
// routes through the caller's transaction when one is in the context.
func Stage(ctx context.Context, r Repository, env event.Envelope) error {
	e, err := From(env)
	if err != nil {
		return err
	}
	return r.Create(ctx, e)
}

type Repository interface {
	Create(ctx context.Context, e *Event) error
	FetchBatch(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	// Release puts claimed-but-unpublished rows back to StatusNew so the
	// next relay pass retries them.
	Release(ctx context.Context, ids []string) error
}
