package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"ticketing/internal/api/middleware"
	"ticketing/internal/app"
	"ticketing/internal/bus/kafka"
	"ticketing/internal/config"
	"ticketing/internal/infrastructure"
	"ticketing/internal/infrastructure/postgres"
	"ticketing/internal/listener"
	"ticketing/internal/migrations"
	"ticketing/internal/payments"
	"ticketing/internal/relay"
)

func main() {
	if err := run(); err != nil {
		slog.Error("payments service exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	log := app.NewLogger(cfg.Log, payments.Group)

	factory := infrastructure.NewFactory(cfg, log)
	defer factory.Close()

	pool, err := factory.Postgres(ctx)
	if err != nil {
		return err
	}
	if err := migrations.Apply(ctx, pool, "payments"); err != nil {
		return err
	}

	rdb, err := factory.Redis(ctx)
	if err != nil {
		return err
	}

	tx := postgres.NewTxManager(pool)
	orderMirror := postgres.NewOrderMirrorRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	service := payments.NewService(tx, orderMirror, paymentRepo, outboxRepo)

	busCfg := kafka.Config{Brokers: cfg.Kafka.Brokers, TopicPrefix: cfg.Kafka.TopicPrefix}
	publisher := kafka.NewPublisher(busCfg)
	defer publisher.Close()

	router := chi.NewRouter()
	router.Use(chimw.RequestID, chimw.RealIP, chimw.Logger, chimw.Recoverer)
	router.Use(middleware.Idempotency(rdb))
	payments.NewHandler(service, log).Register(router)

	handlers := []listener.Handler{
		payments.NewOrderCreatedListener(tx, orderMirror),
		payments.NewOrderCancelledListener(tx, orderMirror),
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, h := range handlers {
		consumer := kafka.NewConsumer(busCfg, h.Subject(), h.Group())
		runner := listener.New(consumer, h, log)
		g.Go(func() error { return runner.Run(ctx) })
	}

	g.Go(func() error {
		return relay.New(outboxRepo, publisher, log, cfg.Relay.Interval, cfg.Relay.BatchSize).Run(ctx)
	})
	g.Go(func() error { return app.Serve(ctx, cfg.HTTP.Addr, router, log) })
	g.Go(func() error { return app.ServeMetrics(ctx, cfg.Metrics.Addr, log) })

	log.Info("payments service started")
	return g.Wait()
}
