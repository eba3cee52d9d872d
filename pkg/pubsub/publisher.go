package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/minicart-io/minicart/pkg/schemas/common"
)

// Publisher hands one envelope to the broker. A publish failure never rolls
// back the local mutation that produced the event; callers log it and move on.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, env common.Envelope) error
	Close() error
}

// -----------------------------------------------------------------------------
// Long-lived publisher (connection held open, channels pooled)
// -----------------------------------------------------------------------------

type pooledPublisher struct {
	conn *amqp.Connection
	pool *channelPool
	log  *slog.Logger
}

// NewPublisher opens a long-lived connection and a bounded channel pool.
// Suits high-rate producers such as the outbox relay.
func NewPublisher(ctx context.Context, opts ConnectionOptions, poolSize int) (Publisher, error) {
	conn, err := DialWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &pooledPublisher{
		conn: conn,
		pool: newChannelPool(conn, poolSize),
		log:  opts.Logger,
	}, nil
}

func (p *pooledPublisher) Publish(ctx context.Context, exchange, routingKey string, env common.Envelope) error {
	ch, err := p.pool.borrow(ctx)
	if err != nil {
		return fmt.Errorf("borrow channel: %w", err)
	}
	defer p.pool.giveBack(ch)

	if err := DeclareExchange(ch, exchange, "topic"); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := publish(ctx, ch, exchange, routingKey, env); err != nil {
		return err
	}
	p.log.Info("published",
		slog.String("exchange", exchange),
		slog.String("key", routingKey),
	)
	return nil
}

func (p *pooledPublisher) Close() error {
	p.pool.close()
	return p.conn.Close()
}

// -----------------------------------------------------------------------------
// Scoped publisher (connect, publish, disconnect)
// -----------------------------------------------------------------------------

type scopedPublisher struct {
	url string
	log *slog.Logger
}

// NewScopedPublisher returns a publisher that dials per publish and closes
// right after. The overhead buys fault isolation: a failed publish cannot
// leave a poisoned channel for the next caller.
func NewScopedPublisher(url string, logger *slog.Logger) Publisher {
	return &scopedPublisher{url: url, log: logger}
}

func (p *scopedPublisher) Publish(ctx context.Context, exchange, routingKey string, env common.Envelope) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer safeClose(ch)

	if err := DeclareExchange(ch, exchange, "topic"); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := publish(ctx, ch, exchange, routingKey, env); err != nil {
		return err
	}
	p.log.Info("published",
		slog.String("exchange", exchange),
		slog.String("key", routingKey),
	)
	return nil
}

func (p *scopedPublisher) Close() error { return nil }

func publish(ctx context.Context, ch *amqp.Channel, exchange, routingKey string, env common.Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msgID := env.MessageID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	return ch.PublishWithContext(ctx, exchange, routingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Type:         env.Event,
			Timestamp:    env.Timestamp,
			Body:         body,
		},
	)
}

// -----------------------------------------------------------------------------
// Fallback publisher (broker not configured)
// -----------------------------------------------------------------------------

type fallbackPublisher struct {
	log *slog.Logger
}

// NewFallback returns a publisher that skips every publish with a warning.
func NewFallback(logger *slog.Logger) Publisher {
	return &fallbackPublisher{log: logger}
}

func (p *fallbackPublisher) Publish(_ context.Context, exchange, routingKey string, _ common.Envelope) error {
	p.log.Warn("fallback publisher: skipped publish",
		slog.String("exchange", exchange),
		slog.String("key", routingKey),
	)
	return nil
}

func (p *fallbackPublisher) Close() error { return nil }
