package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotCached marks a product the replica has never seen. The order service
// cannot sell what it has no local view of.
var ErrNotCached = errors.New("product not in cache")

// CachedProduct is the read replica of a catalog entry, updated only through
// product events. It may be briefly stale relative to the authoritative
// product store.
type CachedProduct struct {
	ProductID    string    `json:"product_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"`
	Stock        int       `json:"stock"`
	Category     string    `json:"category"`
	SKU          string    `json:"sku"`
	Images       []string  `json:"images"`
	IsActive     bool      `json:"is_active"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// ProductCache keeps the replica in Redis, one JSON value per product.
type ProductCache struct {
	rdb *redis.Client
}

func NewProductCache(rdb *redis.Client) *ProductCache {
	return &ProductCache{rdb: rdb}
}

func cacheKey(productID string) string {
	return "product_cache:" + productID
}

func (c *ProductCache) Upsert(ctx context.Context, cp CachedProduct) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal cached product: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(cp.ProductID), body, 0).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", cp.ProductID, err)
	}
	return nil
}

func (c *ProductCache) Get(ctx context.Context, productID string) (*CachedProduct, error) {
	body, err := c.rdb.Get(ctx, cacheKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", productID, err)
	}
	cp := &CachedProduct{}
	if err := json.Unmarshal(body, cp); err != nil {
		return nil, fmt.Errorf("unmarshal cached product %s: %w", productID, err)
	}
	return cp, nil
}

// Deactivate soft-deletes the replica entry. The entry is kept so historical
// orders that reference the product stay resolvable. Unknown ids are a no-op.
func (c *ProductCache) Deactivate(ctx context.Context, productID string) error {
	cp, err := c.Get(ctx, productID)
	if errors.Is(err, ErrNotCached) {
		return nil
	}
	if err != nil {
		return err
	}
	cp.IsActive = false
	cp.LastSyncedAt = time.Now().UTC()
	return c.Upsert(ctx, *cp)
}
