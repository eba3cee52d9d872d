package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/common"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "The total number of outbox events published to the bus",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_errors_total",
		Help: "The total number of failed outbox publish attempts",
	})
)

// claimLease bounds how long a row may sit in the processing state. A claim
// older than this belongs to a relay that died mid-batch; the sweep returns
// it to pending so the row is retried instead of lost.
const claimLease = time.Minute

// Relay polls the outbox table and publishes pending rows. Failed rows go
// back to the pending state; delivery is therefore at-least-once. Every
// publish of a row reuses the row id as the message id, so a duplicate
// publish is recognizable by consumer dedup.
type Relay struct {
	repo      Repository
	publisher pubsub.Publisher
	log       *slog.Logger

	interval  time.Duration
	batchSize int
}

func NewRelay(repo Repository, publisher pubsub.Publisher, logger *slog.Logger, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		log:       logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started", slog.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				r.log.Error("outbox batch failed", slog.Any("error", err))
			}
		}
	}
}

func (r *Relay) processBatch(ctx context.Context) error {
	reclaimed, err := r.repo.ReleaseStale(ctx, time.Now().UTC().Add(-claimLease))
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		r.log.Warn("reclaimed stale outbox rows", slog.Int64("count", reclaimed))
	}

	events, err := r.repo.FetchBatch(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var processed, failed []string
	for _, e := range events {
		env, err := common.New(e.RoutingKey, json.RawMessage(e.Payload))
		if err != nil {
			r.log.Error("outbox row not encodable",
				slog.String("id", e.ID), slog.Any("error", err))
			publishErrors.Inc()
			failed = append(failed, e.ID)
			continue
		}
		env.MessageID = e.ID

		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = r.publisher.Publish(pubCtx, e.Exchange, e.RoutingKey, env)
		cancel()
		if err != nil {
			r.log.Error("outbox publish failed",
				slog.String("id", e.ID),
				slog.String("exchange", e.Exchange),
				slog.String("key", e.RoutingKey),
				slog.Any("error", err),
			)
			publishErrors.Inc()
			failed = append(failed, e.ID)
			continue
		}

		eventsPublished.Inc()
		processed = append(processed, e.ID)
	}

	if len(processed) > 0 {
		if err := r.repo.MarkProcessed(ctx, processed); err != nil {
			return err
		}
		r.log.Info("outbox batch published", slog.Int("count", len(processed)))
	}
	if len(failed) > 0 {
		if err := r.repo.MarkFailed(ctx, failed); err != nil {
			r.log.Error("mark outbox failed", slog.Any("error", err))
		}
	}
	return nil
}
