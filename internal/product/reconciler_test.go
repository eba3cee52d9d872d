package product

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/orders"
)

type fakeStore struct {
	products  map[string]*Product
	updateErr error
	updates   int
}

func newFakeStore(ps ...*Product) *fakeStore {
	s := &fakeStore{products: make(map[string]*Product)}
	for _, p := range ps {
		cp := *p
		s.products[p.ID] = &cp
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (*Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) Update(_ context.Context, p *Product) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates++
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *fakeStore) Insert(_ context.Context, p *Product) error {
	s.products[p.ID] = p
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	delete(s.products, id)
	return nil
}

func (s *fakeStore) List(context.Context) ([]*Product, error) { return nil, nil }

type fakeInbox struct {
	seen map[string]bool
	err  error
}

func (f *fakeInbox) MarkIfNew(_ context.Context, consumer, messageID, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	key := consumer + "/" + messageID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createdDelivery(t *testing.T, messageID string, items ...orders.CreatedItem) pubsub.Delivery {
	t.Helper()
	body, err := json.Marshal(orders.CreatedData{ID: "o-1", OrderNumber: "ORD-TEST0001", Items: items})
	require.NoError(t, err)
	return pubsub.Delivery{Event: orders.EventCreated, Data: body, MessageID: messageID}
}

func cancelledDelivery(t *testing.T, messageID string, items ...orders.CancelledItem) pubsub.Delivery {
	t.Helper()
	body, err := json.Marshal(orders.CancelledData{ID: "o-1", OrderNumber: "ORD-TEST0001", Items: items})
	require.NoError(t, err)
	return pubsub.Delivery{Event: orders.EventCancelled, Data: body, MessageID: messageID}
}

func TestHandleOrderCreatedDecrementsStock(t *testing.T) {
	store := newFakeStore(
		&Product{ID: "p-1", Name: "Widget", Stock: 10},
		&Product{ID: "p-2", Name: "Gadget", Stock: 5},
	)
	r := NewReconciler(store, nil, nil, discardLogger())

	d := createdDelivery(t, "m-1",
		orders.CreatedItem{ProductID: "p-1", Quantity: 2},
		orders.CreatedItem{ProductID: "p-2", Quantity: 5},
	)
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))

	assert.Equal(t, 8, store.products["p-1"].Stock)
	assert.Equal(t, 0, store.products["p-2"].Stock)
}

func TestHandleOrderCancelledRestoresStock(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 8})
	r := NewReconciler(store, nil, nil, discardLogger())

	d := cancelledDelivery(t, "m-2", orders.CancelledItem{ProductID: "p-1", Quantity: 2})
	require.NoError(t, r.HandleOrderCancelled(context.Background(), d))

	assert.Equal(t, 10, store.products["p-1"].Stock)
}

func TestHandleOrderCreatedSkipsUnknownProduct(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 10})
	r := NewReconciler(store, nil, nil, discardLogger())

	d := createdDelivery(t, "m-3",
		orders.CreatedItem{ProductID: "ghost", Quantity: 4},
		orders.CreatedItem{ProductID: "p-1", Quantity: 1},
	)
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))

	assert.Equal(t, 9, store.products["p-1"].Stock, "remaining items still apply")
}

func TestHandleOrderCreatedPersistsNegativeStock(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 1})
	r := NewReconciler(store, nil, nil, discardLogger())

	d := createdDelivery(t, "m-4", orders.CreatedItem{ProductID: "p-1", Quantity: 3})
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))

	assert.Equal(t, -2, store.products["p-1"].Stock)
}

func TestHandleOrderCreatedIgnoresEmptyItems(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 10})
	r := NewReconciler(store, nil, nil, discardLogger())

	d := createdDelivery(t, "m-5",
		orders.CreatedItem{ProductID: "", Quantity: 2},
		orders.CreatedItem{ProductID: "p-1", Quantity: 0},
	)
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))

	assert.Equal(t, 10, store.products["p-1"].Stock)
	assert.Zero(t, store.updates)
}

func TestHandleOrderCreatedPropagatesStoreError(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 10})
	store.updateErr = errors.New("connection reset")
	r := NewReconciler(store, nil, nil, discardLogger())

	d := createdDelivery(t, "m-6", orders.CreatedItem{ProductID: "p-1", Quantity: 1})
	err := r.HandleOrderCreated(context.Background(), d)

	require.Error(t, err, "the dispatcher must see the failure to requeue")
	assert.Equal(t, 10, store.products["p-1"].Stock)
}

func TestHandleOrderCreatedMalformedData(t *testing.T) {
	r := NewReconciler(newFakeStore(), nil, nil, discardLogger())
	d := pubsub.Delivery{Event: orders.EventCreated, Data: json.RawMessage(`"not an object"`)}
	assert.Error(t, r.HandleOrderCreated(context.Background(), d))
}

func TestRedeliveryAppliesOnce(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 10})
	r := NewReconciler(store, &fakeInbox{}, nil, discardLogger())

	d := createdDelivery(t, "m-7", orders.CreatedItem{ProductID: "p-1", Quantity: 2})
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))

	assert.Equal(t, 8, store.products["p-1"].Stock, "second delivery is a logged no-op")
}

func TestMissingMessageIDBypassesDedup(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 10})
	r := NewReconciler(store, &fakeInbox{}, nil, discardLogger())

	d := createdDelivery(t, "", orders.CreatedItem{ProductID: "p-1", Quantity: 2})
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))
	require.NoError(t, r.HandleOrderCreated(context.Background(), d))

	assert.Equal(t, 6, store.products["p-1"].Stock)
}

func TestDedupErrorPropagates(t *testing.T) {
	store := newFakeStore(&Product{ID: "p-1", Name: "Widget", Stock: 10})
	r := NewReconciler(store, &fakeInbox{err: errors.New("inbox down")}, nil, discardLogger())

	d := createdDelivery(t, "m-8", orders.CreatedItem{ProductID: "p-1", Quantity: 2})
	require.Error(t, r.HandleOrderCreated(context.Background(), d))
	assert.Equal(t, 10, store.products["p-1"].Stock)
}
