package pubsub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRecord struct {
	level slog.Level
	msg   string
}

// captureHandler records every log call so tests can assert on output.
type captureHandler struct {
	records []capturedRecord
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, capturedRecord{level: r.Level, msg: r.Message})
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func testDispatcher(retry *RetryPolicy) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Queue:    "product-service.order-events",
		Exchange: "order.events",
		Retry:    retry,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatchMalformedIsDropped(t *testing.T) {
	d := testDispatcher(nil)
	called := false
	d.Handle("order.created", func(context.Context, Delivery) error {
		called = true
		return nil
	})

	ack := &fakeAck{}
	d.dispatch(context.Background(), amqp.Delivery{Body: []byte(`{}`)}, ack, nil)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.False(t, called)
}

func TestDispatchMalformedLogsOnceAtError(t *testing.T) {
	capture := &captureHandler{}
	d := NewDispatcher(DispatcherConfig{
		Queue:    "product-service.order-events",
		Exchange: "order.events",
	}, slog.New(capture))

	ack := &fakeAck{}
	d.dispatch(context.Background(), amqp.Delivery{Body: []byte(`{}`)}, ack, nil)

	assert.True(t, ack.acked)
	require.Len(t, capture.records, 1, "one dropped message, one log entry")
	assert.Equal(t, slog.LevelError, capture.records[0].level)
	assert.Equal(t, "malformed message dropped", capture.records[0].msg)
}

func TestDispatchUnknownEventIsAcknowledged(t *testing.T) {
	d := testDispatcher(nil)
	d.Handle("order.created", func(context.Context, Delivery) error {
		t.Fatal("handler must not run for a foreign event type")
		return nil
	})

	ack := &fakeAck{}
	body := []byte(`{"event":"order.refunded","data":{"id":"o-1"}}`)
	d.dispatch(context.Background(), amqp.Delivery{Body: body}, ack, nil)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestDispatchSuccessAcks(t *testing.T) {
	d := testDispatcher(nil)

	var got Delivery
	d.Handle("order.created", func(_ context.Context, del Delivery) error {
		got = del
		return nil
	})

	ack := &fakeAck{}
	msg := amqp.Delivery{
		Body:       []byte(`{"event":"order.created","data":{"id":"o-1"},"timestamp":"2026-01-02T03:04:05Z"}`),
		MessageId:  "m-1",
		RoutingKey: "order.created",
	}
	d.dispatch(context.Background(), msg, ack, nil)

	assert.True(t, ack.acked)
	assert.Equal(t, "order.created", got.Event)
	assert.Equal(t, "m-1", got.MessageID)
	assert.Equal(t, "order.created", got.RoutingKey)
	assert.JSONEq(t, `{"id":"o-1"}`, string(got.Data))
}

func TestDispatchHandlerErrorRequeues(t *testing.T) {
	d := testDispatcher(nil)
	d.Handle("order.created", func(context.Context, Delivery) error {
		return errors.New("db down")
	})

	ack := &fakeAck{}
	body := []byte(`{"event":"order.created","data":{"id":"o-1"}}`)
	d.dispatch(context.Background(), amqp.Delivery{Body: body}, ack, nil)

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue, "without a retry policy the delivery goes straight back")
}

func TestDispatchHandlerErrorDeadLettersWithRetryPolicy(t *testing.T) {
	d := testDispatcher(&RetryPolicy{TTL: time.Second, MaxAttempts: 3})
	d.Handle("order.created", func(context.Context, Delivery) error {
		return errors.New("db down")
	})

	ack := &fakeAck{}
	body := []byte(`{"event":"order.created","data":{"id":"o-1"}}`)
	d.dispatch(context.Background(), amqp.Delivery{Body: body}, ack, nil)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue, "retry pipeline owns redelivery, not the broker requeue")
}

func TestDispatchExhaustedRetriesParksInFinal(t *testing.T) {
	d := testDispatcher(&RetryPolicy{TTL: time.Second, MaxAttempts: 3})
	d.Handle("order.created", func(context.Context, Delivery) error {
		t.Fatal("handler must not run once retries are exhausted")
		return nil
	})

	parked := false
	toFinal := func(amqp.Delivery) error { parked = true; return nil }

	ack := &fakeAck{}
	msg := amqp.Delivery{
		Body: []byte(`{"event":"order.created","data":{"id":"o-1"}}`),
		Headers: amqp.Table{
			"x-death": []any{
				amqp.Table{"queue": "product-service.order-events", "count": int64(3)},
			},
		},
	}
	d.dispatch(context.Background(), msg, ack, toFinal)

	assert.True(t, parked)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestDeathCount(t *testing.T) {
	headers := amqp.Table{
		"x-death": []any{
			amqp.Table{"queue": "other-queue", "count": int64(9)},
			amqp.Table{"queue": "product-service.order-events", "count": int64(2)},
		},
	}
	assert.Equal(t, 2, deathCount(headers, "product-service.order-events"))
	assert.Equal(t, 0, deathCount(nil, "product-service.order-events"))
	assert.Equal(t, 0, deathCount(amqp.Table{}, "product-service.order-events"))
}

func TestJitteredDelayStaysInBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := JitteredDelay(4*time.Second, 30*time.Second, 25)
		require.GreaterOrEqual(t, got, 3*time.Second)
		require.LessOrEqual(t, got, 5*time.Second)
	}
	assert.Equal(t, 30*time.Second, JitteredDelay(time.Hour, 30*time.Second, 0))
}
