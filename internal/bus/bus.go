// Package bus defines the message channel contract the services depend on.
// The Kafka implementation lives in bus/kafka; tests provide in-memory
// fakes. Delivery is durable, at-least-once, ordered per key within a
// subject, and load-balanced across consumers sharing a group.
package bus

import (
	"context"

	"ticketing/internal/event"
)

// Message is one delivered bus message. Commit is the acknowledgment: an
// uncommitted message is redelivered after restart or rebalance.
type Message struct {
	Key   []byte
	Value []byte

	// transport-private handle needed to commit the message
	Raw any
}

// Publisher sends a fully-formed value to a subject. Publish must not
// return nil before the bus has confirmed the write.
type Publisher interface {
	Publish(ctx context.Context, subject event.Subject, key, value []byte) error
	Close() error
}

// Consumer is one durable subscription: a subject consumed under a fixed
// queue group. Fetch blocks for the next message; Commit acknowledges it.
type Consumer interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}
