// Package products defines the product.events family.
package products

import "time"

const (
	Exchange = "product.events"

	EventCreated = "product.created"
	EventUpdated = "product.updated"
	EventDeleted = "product.deleted"
)

// Snapshot is the full catalog entry carried by product.created and
// product.updated. Consumers upsert their read replica from it.
type Snapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
	SKU         string    `json:"sku"`
	Images      []string  `json:"images"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// DeletedData identifies a removed catalog entry. Replicas soft-delete it.
type DeletedData struct {
	ID  string `json:"id"`
	SKU string `json:"sku"`
}
