package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/minicart-io/minicart/internal/outbox"
	"github.com/minicart-io/minicart/internal/postgres"
	"github.com/minicart-io/minicart/pkg/schemas/orders"
)

// Service creates and transitions orders. Every committed mutation leaves an
// outbox row in the same transaction; the relay publishes it afterwards, so
// a crash between commit and publish cannot lose the event.
type Service struct {
	store  Store
	cache  *ProductCache
	outbox outbox.Repository
	tx     postgres.Transactor
	log    *slog.Logger
}

func NewService(store Store, cache *ProductCache, ob outbox.Repository, tx postgres.Transactor, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, outbox: ob, tx: tx, log: logger}
}

type CreateItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateInput struct {
	UserID          int64             `json:"user_id"`
	Items           []CreateItemInput `json:"items"`
	ShippingAddress ShippingAddress   `json:"shipping_address"`
	Notes           string            `json:"notes"`
}

// Create validates each item against the product replica, snapshots prices,
// and commits order + outbox row together. The stock floor is checked here
// against the replica, which may be stale; the product service persists the
// real count when it consumes the event.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, errors.New("order needs at least one item")
	}

	var (
		items []Item
		total float64
	)
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive for product %s", it.ProductID)
		}
		cp, err := s.cache.Get(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, ErrNotCached) {
				return nil, fmt.Errorf("%w: %s", ErrProductUnknown, it.ProductID)
			}
			return nil, err
		}
		if !cp.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrProductInactive, cp.Name)
		}
		if cp.Stock < it.Quantity {
			return nil, fmt.Errorf("%w for %s: available %d", ErrInsufficientStock, cp.Name, cp.Stock)
		}

		subtotal := cp.Price * float64(it.Quantity)
		total += subtotal
		items = append(items, Item{
			ID:           uuid.NewString(),
			ProductID:    cp.ProductID,
			ProductName:  cp.Name,
			ProductSKU:   cp.SKU,
			ProductPrice: cp.Price,
			Quantity:     it.Quantity,
			Subtotal:     subtotal,
		})
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		OrderNumber:     newOrderNumber(),
		Status:          StatusPending,
		TotalAmount:     total,
		ShippingAddress: in.ShippingAddress,
		Notes:           in.Notes,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, o); err != nil {
			return err
		}
		return s.enqueue(ctx, orders.EventCreated, createdData(o))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		slog.String("order_id", o.ID),
		slog.String("order_number", o.OrderNumber),
		slog.Float64("total_amount", o.TotalAmount),
	)
	return o, nil
}

// Cancel transitions an order to cancelled and queues the compensating
// event that restores reserved stock.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	case StatusShipped, StatusDelivered:
		return nil, fmt.Errorf("%w: status %s", ErrNotCancellable, o.Status)
	}

	now := time.Now().UTC()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		return s.enqueue(ctx, orders.EventCancelled, cancelledData(o, now))
	})
	if err != nil {
		return nil, err
	}

	o.Status = StatusCancelled
	o.UpdatedAt = now
	s.log.Info("order cancelled",
		slog.String("order_id", o.ID),
		slog.String("order_number", o.OrderNumber),
	)
	return o, nil
}

// UpdateStatus transitions an order and announces the new status.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		return s.enqueue(ctx, orders.EventUpdated, orders.UpdatedData{
			ID:          o.ID,
			OrderNumber: o.OrderNumber,
			Status:      status,
			UpdatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	o.Status = status
	o.UpdatedAt = now
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	return s.store.List(ctx, f)
}

func (s *Service) enqueue(ctx context.Context, routingKey string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	return s.outbox.Create(ctx, &outbox.Event{
		ID:         uuid.NewString(),
		Exchange:   orders.Exchange,
		RoutingKey: routingKey,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	})
}

func createdData(o *Order) orders.CreatedData {
	items := make([]orders.CreatedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.CreatedItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.ProductPrice,
			Subtotal:    it.Subtotal,
		})
	}
	return orders.CreatedData{
		ID:          o.ID,
		UserID:      o.UserID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       items,
		CreatedAt:   o.CreatedAt,
	}
}

func cancelledData(o *Order, at time.Time) orders.CancelledData {
	items := make([]orders.CancelledItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.CancelledItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	return orders.CancelledData{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Items:       items,
		CancelledAt: at,
	}
}
