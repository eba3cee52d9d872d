package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minicart-io/minicart/internal/config"
	"github.com/minicart-io/minicart/internal/outbox"
	"github.com/minicart-io/minicart/internal/postgres"
	"github.com/minicart-io/minicart/pkg/pubsub"
)

// outbox-relay publishes committed outbox rows from the order service's
// store to the bus, with retry on failure.
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log.Level).With(slog.String("service", "outbox-relay"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	publisher, err := pubsub.NewPublisher(ctx, pubsub.ConnectionOptions{
		URL:           cfg.Rabbit.URL,
		RetryAttempts: cfg.Rabbit.DialAttempts,
		Delay:         cfg.Rabbit.DialDelay,
		Logger:        log,
	}, 0)
	if err != nil {
		log.Error("connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer publisher.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("relay metrics listening", slog.String("port", cfg.Outbox.MetricsPort))
		_ = http.ListenAndServe(":"+cfg.Outbox.MetricsPort, mux)
	}()

	relay := outbox.NewRelay(
		outbox.NewPGRepository(pool),
		publisher,
		log,
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
	)
	if err := relay.Run(ctx); err != nil {
		log.Error("relay failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("outbox relay stopped")
}
