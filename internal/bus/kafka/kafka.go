package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ticketing/internal/bus"
	"ticketing/internal/event"
)

type Config struct {
	Brokers []string
	// TopicPrefix namespaces the per-subject topics, e.g. prefix
	// "ticketing" and subject "order-created" give "ticketing.order-created".
	TopicPrefix string
}

// Topic maps a subject to its Kafka topic name.
func Topic(prefix string, s event.Subject) string {
	if prefix == "" {
		return string(s)
	}
	return prefix + "." + string(s)
}

// Publisher writes envelopes to one topic per subject. Writers are created
// lazily and reused; messages are hash-partitioned by key so events for one
// aggregate stay ordered.
type Publisher struct {
	cfg Config

	mu      sync.Mutex
	writers map[event.Subject]*kafka.Writer
}

func NewPublisher(cfg Config) *Publisher {
	return &Publisher{
		cfg:     cfg,
		writers: make(map[event.Subject]*kafka.Writer),
	}
}

func (p *Publisher) writer(subject event.Subject) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[subject]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.cfg.Brokers...),
		Topic:                  Topic(p.cfg.TopicPrefix, subject),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	p.writers[subject] = w
	return w
}

func (p *Publisher) Publish(ctx context.Context, subject event.Subject, key, value []byte) error {
	err := p.writer(subject).WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write %s message: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.writers = make(map[event.Subject]*kafka.Writer)
	return firstErr
}

// Consumer reads one subject under one consumer group with manual offset
// commits. Committing the offset is the ack; anything uncommitted is
// redelivered to the group.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(cfg Config, subject event.Subject, group string) *Consumer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       Topic(cfg.TopicPrefix, subject),
		GroupID:     group,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: r}
}

func (c *Consumer) Fetch(ctx context.Context) (bus.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return bus.Message{}, err
	}
	return bus.Message{Key: msg.Key, Value: msg.Value, Raw: msg}, nil
}

func (c *Consumer) Commit(ctx context.Context, msg bus.Message) error {
	raw, ok := msg.Raw.(kafka.Message)
	if !ok {
		return fmt.Errorf("commit: message does not originate from this consumer")
	}
	return c.reader.CommitMessages(ctx, raw)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
