package inbox

import (
	"context"
	"time"

	"ticketing/internal/event"
)

// Event records one processed foreign event per consumer (inbox pattern).
// It deduplicates redeliveries of events whose aggregate version cannot
// guard the local mutation, e.g. payment-created applied to an order.
type Event struct {
	Consumer    string    `json:"consumer"`
	EventID     string    `json:"event_id"`
	Subject     string    `json:"subject"`
	ProcessedAt time.Time `json:"processed_at"`
}

type Store interface {
	// SaveIfNotExists inserts the record and reports whether it was new.
	// Run inside the same transaction as the mutation it guards so a
	// rollback also forgets the record.
	SaveIfNotExists(ctx context.Context, e *Event) (bool, error)
}

// Record stores the envelope's identity for this consumer and reports
// whether this is the first delivery.
func Record(ctx context.Context, s Store, consumer string, env event.Envelope) (bool, error) {
	return s.SaveIfNotExists(ctx, &Event{
		Consumer: consumer,
		EventID:  env.ID,
		Subject:  string(env.Subject),
	})
}
