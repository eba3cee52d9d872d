package order

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *ProductCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewProductCache(rdb)
}

func TestProductCacheUpsertGet(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	in := CachedProduct{
		ProductID:    "p-1",
		Name:         "Widget",
		Price:        9.99,
		Stock:        12,
		SKU:          "WID-001",
		Images:       []string{"a.jpg", "b.jpg"},
		IsActive:     true,
		LastSyncedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, c.Upsert(ctx, in))

	got, err := c.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, in, *got)
}

func TestProductCacheGetMissing(t *testing.T) {
	c := testCache(t)
	_, err := c.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestProductCacheUpsertOverwrites(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, CachedProduct{ProductID: "p-1", Stock: 5}))
	require.NoError(t, c.Upsert(ctx, CachedProduct{ProductID: "p-1", Stock: 3}))

	got, err := c.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
}

func TestProductCacheDeactivate(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, CachedProduct{ProductID: "p-1", Name: "Widget", IsActive: true}))
	require.NoError(t, c.Deactivate(ctx, "p-1"))

	got, err := c.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Widget", got.Name, "entry is kept for historical orders")
}

func TestProductCacheDeactivateUnknownIsNoop(t *testing.T) {
	c := testCache(t)
	assert.NoError(t, c.Deactivate(context.Background(), "ghost"))
}
