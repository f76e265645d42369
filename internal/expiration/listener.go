package expiration

import (
	"context"
	"log/slog"

	"ticketing/internal/clock"
	"ticketing/internal/event"
)

// OrderCreatedListener schedules the expiration for every new order. The
// delay derives from the event's declared expires_at; an order that is
// already past its window fires on the next poll.
type OrderCreatedListener struct {
	sched Scheduler
	clock clock.Clock
	log   *slog.Logger
}

func NewOrderCreatedListener(sched Scheduler, clk clock.Clock, log *slog.Logger) *OrderCreatedListener {
	return &OrderCreatedListener{sched: sched, clock: clk, log: log}
}

func (l *OrderCreatedListener) Subject() event.Subject { return event.SubjectOrderCreated }
func (l *OrderCreatedListener) Group() string          { return Group }

func (l *OrderCreatedListener) OnMessage(ctx context.Context, env event.Envelope) error {
	p, err := event.DecodeAs[*event.OrderCreated](env)
	if err != nil {
		return err
	}

	delay := p.ExpiresAt.Sub(l.clock.Now())
	if delay < 0 {
		delay = 0
	}

	added, err := l.sched.Schedule(ctx, p.ID, delay)
	if err != nil {
		return err
	}
	if !added {
		l.log.Info("expiration already scheduled", "order_id", p.ID)
		return nil
	}

	l.log.Info("expiration scheduled", "order_id", p.ID, "delay", delay)
	return nil
}
