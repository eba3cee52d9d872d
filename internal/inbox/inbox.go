// Package inbox records processed deliveries so redelivered messages become
// logged no-ops instead of double-applied mutations. Consulted inside the
// same transaction as the mutation, it turns at-least-once delivery into
// effectively-once application.
package inbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minicart-io/minicart/internal/postgres"
)

// Log is the processed-delivery log keyed by (consumer, message id).
type Log interface {
	// MarkIfNew records the delivery and reports true when it was unseen.
	// False means the same message id was already applied by this consumer.
	MarkIfNew(ctx context.Context, consumer, messageID, eventType string) (bool, error)
}

type PGLog struct {
	pool *pgxpool.Pool
}

func NewPGLog(pool *pgxpool.Pool) *PGLog {
	return &PGLog{pool: pool}
}

func (l *PGLog) MarkIfNew(ctx context.Context, consumer, messageID, eventType string) (bool, error) {
	const sql = `
		INSERT INTO inbox_events (consumer, message_id, event_type, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (consumer, message_id) DO NOTHING
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = l.pool
	if tx := postgres.TxFrom(ctx); tx != nil {
		executor = tx
	}

	tag, err := executor.Exec(ctx, sql, consumer, messageID, eventType)
	if err != nil {
		return false, fmt.Errorf("insert inbox event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
