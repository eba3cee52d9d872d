package pubsub

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryPolicy bounds redelivery with a dead-letter pipeline: the main queue
// dead-letters failed deliveries to a TTL wait queue, which routes them back
// to the main exchange with the original routing key. Once x-death for the
// main queue reaches MaxAttempts the delivery is copied to <queue>.final and
// acknowledged, surfaced for manual inspection instead of retried forever.
type RetryPolicy struct {
	TTL         time.Duration
	MaxAttempts int
}

func declareRetryTopology(ch *amqp.Channel, queue, exchange string, routingKeys []string, rp *RetryPolicy) error {
	deadEx := queue + ".dead"
	finalEx := queue + ".final"

	mainArgs := amqp.Table{"x-dead-letter-exchange": deadEx}
	if err := declareQueueAndBind(ch, queue, exchange, routingKeys, mainArgs); err != nil {
		return err
	}

	// Wait stage: no dead-letter routing key override, so the message comes
	// back to the main exchange under its original key.
	if err := ch.ExchangeDeclare(deadEx, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	waitArgs := amqp.Table{
		"x-message-ttl":          int32(rp.TTL / time.Millisecond),
		"x-dead-letter-exchange": exchange,
	}
	if _, err := ch.QueueDeclare(deadEx, true, false, false, false, waitArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(deadEx, "", deadEx, false, nil); err != nil {
		return err
	}

	// Final parking lot for exhausted deliveries.
	if err := ch.ExchangeDeclare(finalEx, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(finalEx, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(finalEx, "", finalEx, false, nil)
}

// deathCount reads the broker-maintained x-death header for the given queue.
func deathCount(headers amqp.Table, queue string) int {
	raw, ok := headers["x-death"]
	if !ok {
		return 0
	}
	list, ok := raw.([]any)
	if !ok {
		return 0
	}
	for _, it := range list {
		if m, ok := it.(amqp.Table); ok {
			if q, _ := m["queue"].(string); q == queue {
				if n, ok := m["count"].(int64); ok {
					return int(n)
				}
			}
		}
	}
	return 0
}

func copyToFinal(ch *amqp.Channel, exchange string, d amqp.Delivery) error {
	contentType := d.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return ch.PublishWithContext(context.Background(), exchange, "", false, false, amqp.Publishing{
		ContentType:   contentType,
		Body:          d.Body,
		Headers:       d.Headers,
		MessageId:     d.MessageId,
		CorrelationId: d.CorrelationId,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Type:          d.Type,
		AppId:         d.AppId,
	})
}
