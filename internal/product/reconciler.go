package product

import (
	"context"
	"errors"
	"log/slog"

	"github.com/minicart-io/minicart/internal/inbox"
	"github.com/minicart-io/minicart/internal/postgres"
	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/orders"
)

// Reconciler applies order events to stock. Decrement and restore are not
// atomic as a pair; the processed-delivery log keeps a single event from
// applying twice under redelivery.
type Reconciler struct {
	store     Store
	processed inbox.Log           // nil disables dedup
	tx        postgres.Transactor // nil runs outside a transaction
	consumer  string
	log       *slog.Logger
}

func NewReconciler(store Store, processed inbox.Log, tx postgres.Transactor, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		processed: processed,
		tx:        tx,
		consumer:  "product-service",
		log:       logger,
	}
}

// Register binds the reconciler to its dispatcher.
func (r *Reconciler) Register(d *pubsub.Dispatcher) {
	d.Handle(orders.EventCreated, r.HandleOrderCreated)
	d.Handle(orders.EventCancelled, r.HandleOrderCancelled)
}

// HandleOrderCreated decrements stock for each line item. A missing product
// skips that item; negative stock is persisted with a warning, since the
// floor check happened earlier against a possibly-stale cache.
func (r *Reconciler) HandleOrderCreated(ctx context.Context, d pubsub.Delivery) error {
	var data orders.CreatedData
	if err := d.DecodeData(&data); err != nil {
		return err
	}
	return r.apply(ctx, d, func(ctx context.Context) error {
		for _, item := range data.Items {
			if item.ProductID == "" || item.Quantity <= 0 {
				continue
			}
			if err := r.adjustStock(ctx, data.ID, item.ProductID, -item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// HandleOrderCancelled restores stock for each line item.
func (r *Reconciler) HandleOrderCancelled(ctx context.Context, d pubsub.Delivery) error {
	var data orders.CancelledData
	if err := d.DecodeData(&data); err != nil {
		return err
	}
	return r.apply(ctx, d, func(ctx context.Context) error {
		for _, item := range data.Items {
			if item.ProductID == "" || item.Quantity <= 0 {
				continue
			}
			if err := r.adjustStock(ctx, data.ID, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// apply runs the mutation, wrapped in the dedup check and a transaction when
// those collaborators are configured. Deliveries without a message id bypass
// dedup; foreign producers may not stamp one.
func (r *Reconciler) apply(ctx context.Context, d pubsub.Delivery, fn func(ctx context.Context) error) error {
	run := fn
	if r.processed != nil && d.MessageID != "" {
		run = func(ctx context.Context) error {
			fresh, err := r.processed.MarkIfNew(ctx, r.consumer, d.MessageID, d.Event)
			if err != nil {
				return err
			}
			if !fresh {
				r.log.Warn("duplicate delivery skipped",
					slog.String("event", d.Event),
					slog.String("message_id", d.MessageID),
				)
				return nil
			}
			return fn(ctx)
		}
	}
	if r.tx != nil {
		return r.tx.WithinTransaction(ctx, run)
	}
	return run(ctx)
}

func (r *Reconciler) adjustStock(ctx context.Context, orderID, productID string, delta int) error {
	p, err := r.store.Get(ctx, productID)
	if errors.Is(err, ErrNotFound) {
		r.log.Warn("product not found for stock adjustment",
			slog.String("product_id", productID),
			slog.String("order_id", orderID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	oldStock := p.Stock
	p.Stock += delta
	if p.Stock < 0 {
		r.log.Warn("stock went negative",
			slog.String("product_id", p.ID),
			slog.String("product_name", p.Name),
			slog.Int("old_stock", oldStock),
			slog.Int("new_stock", p.Stock),
		)
	}
	if err := r.store.Update(ctx, p); err != nil {
		return err
	}

	r.log.Info("stock adjusted",
		slog.String("product_id", p.ID),
		slog.String("product_name", p.Name),
		slog.String("order_id", orderID),
		slog.Int("old_stock", oldStock),
		slog.Int("new_stock", p.Stock),
	)
	return nil
}
