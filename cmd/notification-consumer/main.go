package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/minicart-io/minicart/internal/config"
	"github.com/minicart-io/minicart/internal/notification"
	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/orders"
	"github.com/minicart-io/minicart/pkg/schemas/users"
)

// notification-consumer listens on two queues, one dispatcher per queue:
// notification-service.order-events and notification-service.user-events.
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log.Level).With(slog.String("service", "notification-consumer"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := notification.NewNotifier(
		notification.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From),
		cfg.SMTP.To,
		log,
	)

	conn := pubsub.ConnectionOptions{
		URL:           cfg.Rabbit.URL,
		RetryAttempts: cfg.Rabbit.DialAttempts,
		Delay:         cfg.Rabbit.DialDelay,
		Logger:        log,
	}
	retry := &pubsub.RetryPolicy{
		TTL:         cfg.Rabbit.RetryTTL,
		MaxAttempts: cfg.Rabbit.RetryAttempts,
	}

	orderDispatcher := pubsub.NewDispatcher(pubsub.DispatcherConfig{
		Queue:       "notification-service.order-events",
		Exchange:    orders.Exchange,
		RoutingKeys: []string{orders.EventCreated, orders.EventCancelled},
		Prefetch:    cfg.Rabbit.Prefetch,
		Connection:  conn,
		Retry:       retry,
	}, log)
	notifier.RegisterOrderEvents(orderDispatcher)

	userDispatcher := pubsub.NewDispatcher(pubsub.DispatcherConfig{
		Queue:       "notification-service.user-events",
		Exchange:    users.Exchange,
		RoutingKeys: []string{users.EventRegistered, users.EventLoggedIn},
		Prefetch:    cfg.Rabbit.Prefetch,
		Connection:  conn,
		Retry:       retry,
	}, log)
	notifier.RegisterUserEvents(userDispatcher)

	var wg sync.WaitGroup
	for _, d := range []*pubsub.Dispatcher{orderDispatcher, userDispatcher} {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("dispatcher failed", slog.Any("error", err))
				stop()
			}
		}()
	}
	wg.Wait()
	log.Info("notification consumer stopped")
}
