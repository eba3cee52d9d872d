package order

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

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	tx := postgres.TxFrom(ctx)
	if tx == nil {
		return errors.New("order create requires a transaction")
	}

	const orderSQL = `
		INSERT INTO orders (id, user_id, order_number, status, total_amount,
			shipping_street, shipping_city, shipping_postal_code, shipping_country,
			notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := tx.Exec(ctx, orderSQL,
		o.ID, o.UserID, o.OrderNumber, o.Status, o.TotalAmount,
		o.ShippingAddress.Street, o.ShippingAddress.City,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	const itemSQL = `
		INSERT INTO order_items (id, order_id, product_id, product_name, product_sku,
			product_price, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, itemSQL,
			it.ID, o.ID, it.ProductID, it.ProductName, it.ProductSKU,
			it.ProductPrice, it.Quantity, it.Subtotal,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Order, error) {
	const sql = `
		SELECT id, user_id, order_number, status, total_amount,
			shipping_street, shipping_city, shipping_postal_code, shipping_country,
			notes, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	o := &Order{}
	err := s.pool.QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.TotalAmount,
		&o.ShippingAddress.Street, &o.ShippingAddress.City,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	items, err := s.items(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *PGStore) items(ctx context.Context, orderID string) ([]Item, error) {
	const sql = `
		SELECT id, product_id, product_name, product_sku, product_price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
	`
	rows, err := s.pool.Query(ctx, sql, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.ProductSKU,
			&it.ProductPrice, &it.Quantity, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	sql := `
		SELECT id, user_id, order_number, status, total_amount,
			shipping_street, shipping_city, shipping_postal_code, shipping_country,
			notes, created_at, updated_at
		FROM orders
	`
	var (
		args  []any
		where []string
	)
	if f.UserID != 0 {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			sql += " WHERE " + cond
		} else {
			sql += " AND " + cond
		}
	}
	sql += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o := &Order{}
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.TotalAmount,
			&o.ShippingAddress.Street, &o.ShippingAddress.City,
			&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
			&o.Notes, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateStatus(ctx context.Context, id, status string) error {
	const sql = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = s.pool
	if tx := postgres.TxFrom(ctx); tx != nil {
		executor = tx
	}

	tag, err := executor.Exec(ctx, sql, id, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
