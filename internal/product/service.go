package product

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/common"
	"github.com/minicart-io/minicart/pkg/schemas/products"
)

// Service mutates the catalog and announces each committed mutation on the
// bus. Publish failures are logged and swallowed: local consistency takes
// priority over bus delivery.
type Service struct {
	store     Store
	publisher pubsub.Publisher
	log       *slog.Logger
}

func NewService(store Store, publisher pubsub.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, log: logger}
}

type CreateInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Category    string   `json:"category"`
	SKU         string   `json:"sku"`
	Images      []string `json:"images"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	now := time.Now().UTC()
	p := &Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
		SKU:         in.SKU,
		Images:      in.Images,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	s.publishSnapshot(ctx, products.EventCreated, p)
	return p, nil
}

type UpdateInput struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	Category    *string  `json:"category"`
	Images      []string `json:"images"`
	IsActive    *bool    `json:"is_active"`
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Product, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Images != nil {
		p.Images = in.Images
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	s.publishSnapshot(ctx, products.EventUpdated, p)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	env, err := common.New(products.EventDeleted, products.DeletedData{ID: p.ID, SKU: p.SKU})
	if err == nil {
		err = s.publisher.Publish(ctx, products.Exchange, products.EventDeleted, env)
	}
	if err != nil {
		s.log.Warn("failed to publish product.deleted",
			slog.String("product_id", p.ID), slog.Any("error", err))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Product, error) {
	return s.store.List(ctx)
}

func (s *Service) publishSnapshot(ctx context.Context, event string, p *Product) {
	snap := products.Snapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		SKU:         p.SKU,
		Images:      p.Images,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	env, err := common.New(event, snap)
	if err == nil {
		err = s.publisher.Publish(ctx, products.Exchange, event, env)
	}
	if err != nil {
		s.log.Warn("failed to publish product event",
			slog.String("event", event),
			slog.String("product_id", p.ID),
			slog.Any("error", err),
		)
	}
}
