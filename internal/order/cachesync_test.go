package order

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/products"
)

func snapshotDelivery(t *testing.T, event string, snap products.Snapshot) pubsub.Delivery {
	t.Helper()
	body, err := json.Marshal(snap)
	require.NoError(t, err)
	return pubsub.Delivery{Event: event, Data: body}
}

func TestCacheSyncUpsertsSnapshot(t *testing.T) {
	cache := testCache(t)
	sync := NewCacheSync(cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	d := snapshotDelivery(t, products.EventCreated, products.Snapshot{
		ID: "p-1", Name: "Widget", Price: 4.2, Stock: 6, SKU: "WID-001", IsActive: true,
	})
	require.NoError(t, sync.HandleProductUpserted(ctx, d))

	got, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
	assert.Equal(t, 6, got.Stock)
	assert.True(t, got.IsActive)
	assert.False(t, got.LastSyncedAt.IsZero())
}

func TestCacheSyncUpdateReplacesEntry(t *testing.T) {
	cache := testCache(t)
	sync := NewCacheSync(cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, sync.HandleProductUpserted(ctx, snapshotDelivery(t, products.EventCreated,
		products.Snapshot{ID: "p-1", Name: "Widget", Stock: 6, IsActive: true})))
	require.NoError(t, sync.HandleProductUpserted(ctx, snapshotDelivery(t, products.EventUpdated,
		products.Snapshot{ID: "p-1", Name: "Widget v2", Stock: 2, IsActive: true})))

	got, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", got.Name)
	assert.Equal(t, 2, got.Stock)
}

func TestCacheSyncDeleteDeactivates(t *testing.T) {
	cache := testCache(t)
	sync := NewCacheSync(cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, sync.HandleProductUpserted(ctx, snapshotDelivery(t, products.EventCreated,
		products.Snapshot{ID: "p-1", Name: "Widget", IsActive: true})))

	body, err := json.Marshal(products.DeletedData{ID: "p-1", SKU: "WID-001"})
	require.NoError(t, err)
	require.NoError(t, sync.HandleProductDeleted(ctx, pubsub.Delivery{Event: products.EventDeleted, Data: body}))

	got, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}
