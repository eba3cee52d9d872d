package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicart-io/minicart/pkg/schemas/common"
)

type memRepo struct {
	pending   []*Event
	stale     []*Event
	processed []string
	failed    []string
	fetchErr  error
}

func (m *memRepo) Create(_ context.Context, e *Event) error {
	m.pending = append(m.pending, e)
	return nil
}

func (m *memRepo) FetchBatch(_ context.Context, limit int) ([]*Event, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *memRepo) MarkProcessed(_ context.Context, ids []string) error {
	m.processed = append(m.processed, ids...)
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, ids []string) error {
	m.failed = append(m.failed, ids...)
	return nil
}

func (m *memRepo) ReleaseStale(_ context.Context, _ time.Time) (int64, error) {
	n := int64(len(m.stale))
	m.pending = append(m.pending, m.stale...)
	m.stale = nil
	return n, nil
}

type publishCall struct {
	exchange string
	key      string
	env      common.Envelope
}

type memPublisher struct {
	calls   []publishCall
	failKey string
}

func (p *memPublisher) Publish(_ context.Context, exchange, routingKey string, env common.Envelope) error {
	if routingKey == p.failKey {
		return errors.New("broker unavailable")
	}
	p.calls = append(p.calls, publishCall{exchange: exchange, key: routingKey, env: env})
	return nil
}

func (p *memPublisher) Close() error { return nil }

func testRelay(repo Repository, pub *memPublisher) *Relay {
	return NewRelay(repo, pub, slog.New(slog.NewTextHandler(io.Discard, nil)), 0, 0)
}

func pendingEvent(id, key string) *Event {
	return &Event{
		ID:         id,
		Exchange:   "order.events",
		RoutingKey: key,
		Payload:    json.RawMessage(`{"id":"o-1"}`),
		Status:     StatusNew,
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	repo := &memRepo{pending: []*Event{
		pendingEvent("e-1", "order.created"),
		pendingEvent("e-2", "order.cancelled"),
	}}
	pub := &memPublisher{}

	require.NoError(t, testRelay(repo, pub).processBatch(context.Background()))

	require.Len(t, pub.calls, 2)
	assert.Equal(t, "order.events", pub.calls[0].exchange)
	assert.Equal(t, "order.created", pub.calls[0].key)
	assert.Equal(t, "order.created", pub.calls[0].env.Event)
	assert.JSONEq(t, `{"id":"o-1"}`, string(pub.calls[0].env.Data))
	assert.False(t, pub.calls[0].env.Timestamp.IsZero(), "envelope is stamped at publish time")
	assert.Equal(t, "e-1", pub.calls[0].env.MessageID, "row id doubles as the message id")
	assert.Equal(t, "e-2", pub.calls[1].env.MessageID)

	assert.Equal(t, []string{"e-1", "e-2"}, repo.processed)
	assert.Empty(t, repo.failed)
}

func TestRepublishKeepsMessageID(t *testing.T) {
	row := pendingEvent("e-1", "order.created")
	repo := &memRepo{pending: []*Event{row}}
	pub := &memPublisher{}
	relay := testRelay(repo, pub)

	require.NoError(t, relay.processBatch(context.Background()))
	require.NoError(t, relay.processBatch(context.Background()))

	require.Len(t, pub.calls, 2)
	assert.Equal(t, pub.calls[0].env.MessageID, pub.calls[1].env.MessageID,
		"a duplicate publish must be recognizable by consumer dedup")
	assert.Equal(t, "e-1", pub.calls[0].env.MessageID)
}

func TestProcessBatchReclaimsStaleRows(t *testing.T) {
	repo := &memRepo{stale: []*Event{pendingEvent("e-9", "order.created")}}
	pub := &memPublisher{}

	require.NoError(t, testRelay(repo, pub).processBatch(context.Background()))

	require.Len(t, pub.calls, 1, "a row claimed by a dead relay is retried, not lost")
	assert.Equal(t, "e-9", pub.calls[0].env.MessageID)
	assert.Equal(t, []string{"e-9"}, repo.processed)
}

func TestProcessBatchReturnsFailedRows(t *testing.T) {
	repo := &memRepo{pending: []*Event{
		pendingEvent("e-1", "order.created"),
		pendingEvent("e-2", "order.cancelled"),
	}}
	pub := &memPublisher{failKey: "order.cancelled"}

	require.NoError(t, testRelay(repo, pub).processBatch(context.Background()))

	assert.Equal(t, []string{"e-1"}, repo.processed)
	assert.Equal(t, []string{"e-2"}, repo.failed, "failed rows go back to pending for the next tick")
}

func TestProcessBatchEmptyIsNoop(t *testing.T) {
	repo := &memRepo{}
	pub := &memPublisher{}

	require.NoError(t, testRelay(repo, pub).processBatch(context.Background()))
	assert.Empty(t, pub.calls)
	assert.Empty(t, repo.processed)
}

func TestProcessBatchFetchErrorPropagates(t *testing.T) {
	repo := &memRepo{fetchErr: errors.New("pg down")}
	err := testRelay(repo, &memPublisher{}).processBatch(context.Background())
	assert.Error(t, err)
}
