// Package product owns the authoritative catalog and reconciles stock
// against order events.
package product

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Stock       int
	Category    string
	SKU         string
	Images      []string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the single-writer product persistence owned by this service.
type Store interface {
	Get(ctx context.Context, id string) (*Product, error)
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Product, error)
}
