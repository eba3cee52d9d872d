// Package outbox implements the transactional outbox: events are written to
// a local table in the same transaction as the domain mutation, and a relay
// publishes them to the bus with retry. A crash between commit and publish
// loses nothing; at worst the relay publishes twice.
package outbox

import (
	"context"
	"encoding/json"
	"time"
)

const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Event is one row awaiting (or past) publication. Payload holds the event
// data object; the relay wraps it in the wire envelope at publish time.
type Event struct {
	ID         string
	Exchange   string
	RoutingKey string
	Payload    json.RawMessage
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Repository interface {
	// Create inserts a pending row; it joins the caller's transaction when
	// one is present in the context.
	Create(ctx context.Context, e *Event) error
	// FetchBatch claims up to limit pending rows for publishing.
	FetchBatch(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	// MarkFailed returns rows to the pending state for a later attempt.
	MarkFailed(ctx context.Context, ids []string) error
	// ReleaseStale returns processing rows claimed before cutoff to the
	// pending state and reports how many it moved. Covers a relay that
	// crashed between claiming a batch and marking it.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}
