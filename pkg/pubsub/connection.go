package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionOptions configures the dial/retry policy for broker connections.
type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *slog.Logger
}

const maxDialDelay = 60 * time.Second

// DialWithRetry connects to RabbitMQ with exponential backoff.
// It respects context cancellation for graceful shutdown.
func DialWithRetry(ctx context.Context, cfg ConnectionOptions) (*amqp.Connection, error) {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp.Dial(cfg.URL)
		if err == nil {
			if i > 1 && cfg.Logger != nil {
				cfg.Logger.Info("rabbit connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("rabbit dial failed",
				slog.Int("attempt", i),
				slog.Duration("sleep", sleep),
				slog.Any("error", err),
			)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w",
		attempts, lastErr)
}

// JitteredDelay spreads reconnect attempts so restarted consumers do not
// stampede the broker.
func JitteredDelay(base, cap time.Duration, jitterPct int) time.Duration {
	if jitterPct <= 0 {
		jitterPct = 25
	}
	delta := (rand.Float64()*2 - 1) * float64(jitterPct) / 100.0
	wait := time.Duration(float64(base) * (1 + delta))
	if wait < 0 {
		wait = base
	}
	if wait > cap {
		wait = cap
	}
	return wait
}

// DeclareExchange declares a durable, non-auto-deleted exchange. Safe to call
// from both producers and consumers; redeclaration with matching properties
// is a no-op on the broker.
func DeclareExchange(ch *amqp.Channel, name, kind string) error {
	if kind == "" {
		kind = "topic"
	}
	return ch.ExchangeDeclare(name, kind, true, false, false, false, nil)
}

// DeclareQueueAndBind declares a durable, non-exclusive queue and binds each
// routing key to the exchange.
func DeclareQueueAndBind(ch *amqp.Channel, queue, exchange string, routingKeys []string) error {
	return declareQueueAndBind(ch, queue, exchange, routingKeys, nil)
}

func declareQueueAndBind(ch *amqp.Channel, queue, exchange string, routingKeys []string, args amqp.Table) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s with %s: %w", queue, exchange, key, err)
		}
	}
	return nil
}

func safeClose(ch *amqp.Channel) error {
	if ch == nil {
		return nil
	}
	defer func() { _ = recover() }()
	return ch.Close()
}
