package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/products"
)

// CacheSync keeps the product read replica in step with product events.
// Upserts are naturally idempotent, so redelivery needs no dedup here.
type CacheSync struct {
	cache *ProductCache
	log   *slog.Logger
}

func NewCacheSync(cache *ProductCache, logger *slog.Logger) *CacheSync {
	return &CacheSync{cache: cache, log: logger}
}

// Register binds the sync handlers to their dispatcher.
func (s *CacheSync) Register(d *pubsub.Dispatcher) {
	d.Handle(products.EventCreated, s.HandleProductUpserted)
	d.Handle(products.EventUpdated, s.HandleProductUpserted)
	d.Handle(products.EventDeleted, s.HandleProductDeleted)
}

// HandleProductUpserted replaces the replica entry with the full snapshot
// from the payload.
func (s *CacheSync) HandleProductUpserted(ctx context.Context, d pubsub.Delivery) error {
	var snap products.Snapshot
	if err := d.DecodeData(&snap); err != nil {
		return err
	}
	cp := CachedProduct{
		ProductID:    snap.ID,
		Name:         snap.Name,
		Description:  snap.Description,
		Price:        snap.Price,
		Stock:        snap.Stock,
		Category:     snap.Category,
		SKU:          snap.SKU,
		Images:       snap.Images,
		IsActive:     snap.IsActive,
		LastSyncedAt: time.Now().UTC(),
	}
	if err := s.cache.Upsert(ctx, cp); err != nil {
		return err
	}
	s.log.Info("product replica synced",
		slog.String("event", d.Event),
		slog.String("product_id", snap.ID),
		slog.String("name", snap.Name),
	)
	return nil
}

// HandleProductDeleted marks the replica entry inactive.
func (s *CacheSync) HandleProductDeleted(ctx context.Context, d pubsub.Delivery) error {
	var data products.DeletedData
	if err := d.DecodeData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		return nil
	}
	if err := s.cache.Deactivate(ctx, data.ID); err != nil {
		return err
	}
	s.log.Info("product replica deactivated", slog.String("product_id", data.ID))
	return nil
}
