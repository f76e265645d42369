// Package relay drains the transactional outbox to the bus. Rows stay in
// the outbox until the bus confirms the write, so a publish is never lost
// even if the process dies between commit and send.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ticketing/internal/bus"
	"ticketing/internal/domain/outbox"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_events_published_total",
		Help: "Outbox events published to the bus.",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_publish_errors_total",
		Help: "Failed publish attempts; the row is released for retry.",
	})
)

type Relay struct {
	outbox   outbox.Repository
	pub      bus.Publisher
	log      *slog.Logger
	interval time.Duration
	batch    int
}

func New(ob outbox.Repository, pub bus.Publisher, log *slog.Logger, interval time.Duration, batch int) *Relay {
	return &Relay{outbox: ob, pub: pub, log: log, interval: interval, batch: batch}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started", "interval", r.interval, "batch", r.batch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.ProcessBatch(ctx); err != nil {
				r.log.Error("process outbox batch", "error", err)
			}
		}
	}
}

// ProcessBatch claims pending rows, publishes them in creation order, and
// marks the confirmed ones processed. Failed rows go back to 'new'.
func (r *Relay) ProcessBatch(ctx context.Context) error {
	events, err := r.outbox.FetchBatch(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var processed, failed []string

	for _, e := range events {
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.pub.Publish(sendCtx, e.Subject, []byte(e.Key), e.Envelope)
		cancel()

		if err != nil {
			publishErrors.Inc()
			r.log.Error("publish outbox event", "event_id", e.ID, "subject", string(e.Subject), "error", err)
			failed = append(failed, e.ID)
			continue
		}

		eventsPublished.Inc()
		processed = append(processed, e.ID)
	}

	if len(processed) > 0 {
		if err := r.outbox.MarkProcessed(ctx, processed); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		if err := r.outbox.Release(ctx, failed); err != nil {
			return err
		}
	}

	return nil
}
