package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/minicart-io/minicart/internal/config"
	"github.com/minicart-io/minicart/internal/order"
	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/products"
)

// order-consumer keeps the product read replica in sync on
// order-service.product-events.
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log.Level).With(slog.String("service", "order-consumer"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	sync := order.NewCacheSync(order.NewProductCache(rdb), log)

	dispatcher := pubsub.NewDispatcher(pubsub.DispatcherConfig{
		Queue:       "order-service.product-events",
		Exchange:    products.Exchange,
		RoutingKeys: []string{products.EventCreated, products.EventUpdated, products.EventDeleted},
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
	sync.Register(dispatcher)

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("dispatcher failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("order consumer stopped")
}
