package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minicart-io/minicart/internal/postgres"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (s *PGStore) querier(ctx context.Context) rowQuerier {
	if tx := postgres.TxFrom(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *PGStore) execer(ctx context.Context) execer {
	if tx := postgres.TxFrom(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *PGStore) Get(ctx context.Context, id string) (*Product, error) {
	const sql = `
		SELECT id, name, description, price, stock, category, sku, images, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`
	p := &Product{}
	err := s.querier(ctx).QueryRow(ctx, sql, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.Category, &p.SKU, &p.Images, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (s *PGStore) Insert(ctx context.Context, p *Product) error {
	const sql = `
		INSERT INTO products (id, name, description, price, stock, category, sku, images, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).Exec(ctx, sql,
		p.ID, p.Name, p.Description, p.Price, p.Stock,
		p.Category, p.SKU, p.Images, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, p *Product) error {
	const sql = `
		UPDATE products
		SET name = $2, description = $3, price = $4, stock = $5, category = $6,
		    sku = $7, images = $8, is_active = $9, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.execer(ctx).Exec(ctx, sql,
		p.ID, p.Name, p.Description, p.Price, p.Stock,
		p.Category, p.SKU, p.Images, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tag, err := s.execer(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]*Product, error) {
	const sql = `
		SELECT id, name, description, price, stock, category, sku, images, is_active, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p := &Product{}
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
			&p.Category, &p.SKU, &p.Images, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
