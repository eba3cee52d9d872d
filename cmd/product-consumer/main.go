package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/minicart-io/minicart/internal/config"
	"github.com/minicart-io/minicart/internal/inbox"
	"github.com/minicart-io/minicart/internal/postgres"
	"github.com/minicart-io/minicart/internal/product"
	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/orders"
)

// product-consumer reconciles stock against order events on
// product-service.order-events.
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log.Level).With(slog.String("service", "product-consumer"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	reconciler := product.NewReconciler(
		product.NewPGStore(pool),
		inbox.NewPGLog(pool),
		postgres.NewTxManager(pool),
		log,
	)

	dispatcher := pubsub.NewDispatcher(pubsub.DispatcherConfig{
		Queue:       "product-service.order-events",
		Exchange:    orders.Exchange,
		RoutingKeys: []string{orders.EventCreated, orders.EventCancelled},
		Prefetch:    cfg.Rabbit.Prefetch,
		Connection: pubsub.ConnectionOptions{
			URL:           cfg.Rabbit.URL,
			RetryAttempts: cfg.Rabbit.DialAttempts,
			Delay:         cfg.Rabbit.DialDelay,
			Logger:        log,
		},
		Retry: &pubsub.RetryPolicy{
			TTL:         cfg.Rabbit.RetryTTL,
			MaxAttempts: cfg.Rabbit.RetryAttempts,
		},
	}, log)
	reconciler.Register(dispatcher)

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("dispatcher failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("product consumer stopped")
}
