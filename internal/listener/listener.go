// Package listener runs one durable subscription: fetch, decode, handle,
// commit. The commit is the acknowledgment and the failure boundary: it
// happens only after the handler has fully committed its own transaction,
// so a crash anywhere earlier yields redelivery, never a lost or
// half-applied message.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ticketing/internal/bus"
	"ticketing/internal/domain"
	"ticketing/internal/event"
)

var (
	handledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listener_handled_total",
		Help: "Messages handled and acknowledged, per subject and group.",
	}, []string{"subject", "group"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listener_handle_failures_total",
		Help: "Handler failures (message not acknowledged), per reason.",
	}, []string{"subject", "group", "reason"})

	handleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listener_handle_duration_seconds",
		Help:    "Time spent in a single handler attempt.",
		Buckets: []float64{0.005, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// Handler reacts to one subject under one queue group. OnMessage must be
// idempotent under redelivery: a nil return means the effect is committed
// or was already applied (safe no-op); any error means the message must not
// be acknowledged.
type Handler interface {
	Subject() event.Subject
	Group() string
	OnMessage(ctx context.Context, env event.Envelope) error
}

// Runner drives one Handler off one Consumer. Failures are retried in
// place with capped exponential backoff; a message is never skipped and
// never acknowledged on a failure path, so a persistently failing message
// parks its partition: later events for the same aggregate depend on it.
type Runner struct {
	consumer bus.Consumer
	handler  Handler
	log      *slog.Logger

	backoffBase time.Duration
	backoffCap  time.Duration
}

type Option func(*Runner)

// WithBackoff overrides the retry backoff bounds (tests use tiny values).
func WithBackoff(base, cap time.Duration) Option {
	return func(r *Runner) {
		r.backoffBase = base
		r.backoffCap = cap
	}
}

func New(consumer bus.Consumer, handler Handler, log *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		consumer:    consumer,
		handler:     handler,
		log: log.With(
			"subject", string(handler.Subject()),
			"group", handler.Group(),
		),
		backoffBase: 200 * time.Millisecond,
		backoffCap:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer r.consumer.Close()

	for {
		msg, err := r.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("fetch message", "error", err)
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if err := r.process(ctx, msg); err != nil {
			// only context cancellation escapes process
			return nil
		}

		if err := r.consumer.Commit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// The handler is idempotent, so the redelivery caused by a
			// failed commit is absorbed as a no-op.
			r.log.Error("commit message", "error", err)
		}
	}
}

// process retries the handler until it succeeds or the context ends.
func (r *Runner) process(ctx context.Context, msg bus.Message) error {
	subject, group := string(r.handler.Subject()), r.handler.Group()

	for attempt := 0; ; attempt++ {
		err := r.handle(ctx, msg)
		if err == nil {
			handledTotal.WithLabelValues(subject, group).Inc()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := classify(err)
		failuresTotal.WithLabelValues(subject, group, reason).Inc()
		r.log.Error("handle message", "error", err, "reason", reason, "attempt", attempt+1)

		if !sleep(ctx, r.backoff(attempt)) {
			return ctx.Err()
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg bus.Message) error {
	start := time.Now()
	defer func() {
		handleDuration.Observe(time.Since(start).Seconds())
	}()

	var env event.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return errors.Join(event.ErrValidation, err)
	}

	if env.Subject != r.handler.Subject() {
		// A foreign subject on this topic is a producer bug; acknowledging
		// it would hide the bug, so treat it as a validation failure.
		return errors.Join(event.ErrValidation, errors.New("subject mismatch: "+string(env.Subject)))
	}

	return r.handler.OnMessage(ctx, env)
}

func (r *Runner) backoff(attempt int) time.Duration {
	d := r.backoffBase << uint(min(attempt, 16))
	if d <= 0 || d > r.backoffCap {
		return r.backoffCap
	}
	return d
}

func classify(err error) string {
	switch {
	case errors.Is(err, event.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "store"
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
