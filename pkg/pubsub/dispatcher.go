package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/minicart-io/minicart/pkg/schemas/common"
)

// Delivery is one decoded message handed to a handler.
type Delivery struct {
	Event       string
	Data        json.RawMessage
	Timestamp   time.Time
	MessageID   string
	RoutingKey  string
	Redelivered bool
}

// DecodeData unmarshals the event payload into a typed struct.
func (d Delivery) DecodeData(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", d.Event, err)
	}
	return nil
}

// HandlerFunc applies one reconciling mutation. A returned error requeues the
// delivery; nil acknowledges it.
type HandlerFunc func(ctx context.Context, d Delivery) error

// DispatcherConfig describes one (queue, exchange) consume loop.
type DispatcherConfig struct {
	Queue       string
	Exchange    string
	RoutingKeys []string
	Prefetch    int // 0 => 1, strictly sequential
	Connection  ConnectionOptions
	Retry       *RetryPolicy // nil => immediate requeue on handler failure
}

// Dispatcher serves exactly one queue: it binds the routing keys, decodes each
// delivery, routes by the event tag, and resolves every delivery to ack,
// requeue, or drop. Handlers run one at a time.
type Dispatcher struct {
	cfg      DispatcherConfig
	log      *slog.Logger
	handlers map[string]HandlerFunc
}

func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		log:      logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for an exact event tag. Adding an event type is
// a table entry, not a new branch.
func (d *Dispatcher) Handle(event string, h HandlerFunc) {
	d.handlers[event] = h
}

// Run owns the broker connection for the life of the loop: acquire, consume,
// release. A lost connection is re-dialed with jittered backoff; Run returns
// only when ctx is cancelled or the initial dial budget is exhausted.
func (d *Dispatcher) Run(ctx context.Context) error {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		conn, err := DialWithRetry(ctx, d.cfg.Connection)
		if err != nil {
			return err
		}

		err = d.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := JitteredDelay(backoff, maxBackoff, 25)
		d.log.Error("consume loop ended, reconnecting",
			slog.String("queue", d.cfg.Queue),
			slog.Duration("retry_in", wait),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if backoff*2 < maxBackoff {
			backoff *= 2
		}
	}
}

// consume declares topology and processes deliveries until the channel closes
// or ctx is cancelled. In-flight handler work finishes before it returns.
func (d *Dispatcher) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer safeClose(ch)

	prefetch := d.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	if err := DeclareExchange(ch, d.cfg.Exchange, "topic"); err != nil {
		return fmt.Errorf("declare exchange %s: %w", d.cfg.Exchange, err)
	}
	if d.cfg.Retry != nil {
		err = declareRetryTopology(ch, d.cfg.Queue, d.cfg.Exchange, d.cfg.RoutingKeys, d.cfg.Retry)
	} else {
		err = DeclareQueueAndBind(ch, d.cfg.Queue, d.cfg.Exchange, d.cfg.RoutingKeys)
	}
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(d.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", d.cfg.Queue, err)
	}
	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))

	d.log.Info("dispatcher started",
		slog.String("queue", d.cfg.Queue),
		slog.String("exchange", d.cfg.Exchange),
		slog.Any("routing_keys", d.cfg.RoutingKeys),
	)

	toFinal := func(m amqp.Delivery) error {
		return copyToFinal(ch, d.cfg.Queue+".final", m)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closeCh:
			if amqpErr == nil {
				return errors.New("channel closed")
			}
			return amqpErr
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery stream closed")
			}
			d.dispatch(ctx, msg, msg, toFinal)
		}
	}
}

// acknowledger is the slice of amqp.Delivery the dispatcher needs to resolve
// a delivery. Narrowed for tests.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// dispatch resolves exactly one delivery: malformed and unknown event types
// are acknowledged (they must not block the queue), handler success
// acknowledges, handler failure requeues (directly, or through the retry
// pipeline when one is configured).
func (d *Dispatcher) dispatch(ctx context.Context, msg amqp.Delivery, ack acknowledger, toFinal func(amqp.Delivery) error) {
	env, err := common.Decode(msg.Body)
	if err != nil {
		d.log.Error("malformed message dropped",
			slog.String("queue", d.cfg.Queue),
			slog.String("message_id", msg.MessageId),
			slog.Any("error", err),
		)
		_ = ack.Ack(false)
		return
	}

	h, ok := d.handlers[env.Event]
	if !ok {
		d.log.Warn("unknown event type acknowledged",
			slog.String("queue", d.cfg.Queue),
			slog.String("event", env.Event),
		)
		_ = ack.Ack(false)
		return
	}

	if rp := d.cfg.Retry; rp != nil && rp.MaxAttempts > 0 {
		if deathCount(msg.Headers, d.cfg.Queue) >= rp.MaxAttempts {
			d.log.Error("retries exhausted, parked in final queue",
				slog.String("queue", d.cfg.Queue),
				slog.String("event", env.Event),
				slog.String("message_id", msg.MessageId),
			)
			if toFinal != nil {
				_ = toFinal(msg)
			}
			_ = ack.Ack(false)
			return
		}
	}

	del := Delivery{
		Event:       env.Event,
		Data:        env.Data,
		Timestamp:   env.Timestamp,
		MessageID:   msg.MessageId,
		RoutingKey:  msg.RoutingKey,
		Redelivered: msg.Redelivered,
	}
	if err := h(ctx, del); err != nil {
		d.log.Error("handler failed",
			slog.String("queue", d.cfg.Queue),
			slog.String("event", env.Event),
			slog.Any("error", err),
		)
		if d.cfg.Retry != nil {
			_ = ack.Nack(false, false) // dead-letter to the wait queue
		} else {
			_ = ack.Nack(false, true)
		}
		return
	}
	_ = ack.Ack(false)
}
