package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minicart-io/minicart/internal/postgres"
)

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, e *Event) error {
	const sql = `
		INSERT INTO outbox (id, exchange, routing_key, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool
	if tx := postgres.TxFrom(ctx); tx != nil {
		executor = tx
	}

	_, err := executor.Exec(ctx, sql,
		e.ID, e.Exchange, e.RoutingKey, e.Payload, StatusNew, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *PGRepository) FetchBatch(ctx context.Context, limit int) ([]*Event, error) {
	const sql = `
		WITH claimed AS (
			SELECT id
			FROM outbox
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed)
		RETURNING id, exchange, routing_key, payload, status, created_at, updated_at
	`

	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.Exchange, &e.RoutingKey, &e.Payload, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PGRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `UPDATE outbox SET status = 'processed', updated_at = NOW() WHERE id = ANY($1)`
	if _, err := r.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	return nil
}

func (r *PGRepository) MarkFailed(ctx context.Context, ids []string) error {
	const sql = `UPDATE outbox SET status = 'new', updated_at = NOW() WHERE id = ANY($1)`
	if _, err := r.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func (r *PGRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const sql = `UPDATE outbox SET status = 'new', updated_at = NOW() WHERE status = 'processing' AND updated_at < $1`
	tag, err := r.pool.Exec(ctx, sql, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale outbox claims: %w", err)
	}
	return tag.RowsAffected(), nil
}
