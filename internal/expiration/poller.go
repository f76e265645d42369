package expiration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ticketing/internal/bus"
	"ticketing/internal/event"
)

var (
	expirationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expiration_fired_total",
		Help: "Expiration events published.",
	})
	expirationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expiration_publish_errors_total",
		Help: "Failed expiration publish attempts.",
	})
)

// Poller fires due expirations. The schedule entry is removed only after
// the bus confirms the publish; a crash in between re-fires on restart,
// which the orders service absorbs as a no-op.
type Poller struct {
	sched    Scheduler
	pub      bus.Publisher
	log      *slog.Logger
	interval time.Duration
	batch    int64
}

func NewPoller(sched Scheduler, pub bus.Publisher, log *slog.Logger, interval time.Duration, batch int64) *Poller {
	return &Poller{sched: sched, pub: pub, log: log, interval: interval, batch: batch}
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("expiration poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Fire(ctx); err != nil {
				p.log.Error("fire due expirations", "error", err)
			}
		}
	}
}

// Fire publishes order-expiration-complete for every due order.
func (p *Poller) Fire(ctx context.Context) error {
	due, err := p.sched.Due(ctx, p.batch)
	if err != nil {
		return fmt.Errorf("fetch due expirations: %w", err)
	}

	for _, orderID := range due {
		env, err := event.New(Group, event.ExpirationComplete{OrderID: orderID})
		if err != nil {
			return err
		}

		value, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}

		if err := p.pub.Publish(ctx, env.Subject, []byte(orderID), value); err != nil {
			expirationErrors.Inc()
			p.log.Error("publish expiration", "order_id", orderID, "error", err)
			continue
		}

		if err := p.sched.Remove(ctx, orderID); err != nil {
			return fmt.Errorf("remove fired expiration: %w", err)
		}

		expirationsFired.Inc()
		p.log.Info("expiration fired", "order_id", orderID)
	}

	return nil
}
