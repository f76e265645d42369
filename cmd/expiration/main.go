package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"ticketing/internal/app"
	"ticketing/internal/bus/kafka"
	"ticketing/internal/clock"
	"ticketing/internal/config"
	"ticketing/internal/expiration"
	"ticketing/internal/infrastructure"
	"ticketing/internal/listener"
)

func main() {
	if err := run(); err != nil {
		slog.Error("expiration service exited", "error", err)
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

	log := app.NewLogger(cfg.Log, expiration.Group)

	factory := infrastructure.NewFactory(cfg, log)
	defer factory.Close()

	rdb, err := factory.Redis(ctx)
	if err != nil {
		return err
	}

	clk := clock.NewSystem()
	scheduler := expiration.NewRedisScheduler(rdb, cfg.Expiration.ScheduleKey, clk)

	busCfg := kafka.Config{Brokers: cfg.Kafka.Brokers, TopicPrefix: cfg.Kafka.TopicPrefix}
	publisher := kafka.NewPublisher(busCfg)
	defer publisher.Close()

	created := expiration.NewOrderCreatedListener(scheduler, clk, log)
	consumer := kafka.NewConsumer(busCfg, created.Subject(), created.Group())
	runner := listener.New(consumer, created, log)

	poller := expiration.NewPoller(scheduler, publisher, log, cfg.Expiration.PollInterval, cfg.Expiration.BatchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error { return app.ServeMetrics(ctx, cfg.Metrics.Addr, log) })

	log.Info("expiration service started")
	return g.Wait()
}
