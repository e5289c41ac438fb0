package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ekomarket/go-shop-orders/internal/orders"
)

// Store implements orders.TxRunner plus the read/transition queries the
// handlers and the fulfillment consumer need.
type Store struct{ DB *pgxpool.Pool }

func (s *Store) InTx(ctx context.Context, fn func(orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storageErr("begin", err)
	}
	// Rollback is a no-op after Commit; it also fires when the caller's
	// context is canceled mid-flight, so no partial write survives.
	defer tx.Rollback(ctx)

	if err := fn(&orderTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

type orderTx struct{ tx pgx.Tx }

func (t *orderTx) LockProduct(ctx context.Context, productID string) (orders.ProductRow, error) {
	var row orders.ProductRow
	err := t.tx.QueryRow(ctx,
		`SELECT price, stock_quantity FROM products WHERE id=$1 FOR UPDATE`,
		productID).Scan(&row.Price, &row.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.ProductRow{}, orders.ErrProductNotFound
	}
	if err != nil {
		return orders.ProductRow{}, storageErr("lock product", err)
	}
	return row, nil
}

func (t *orderTx) UpdateStock(ctx context.Context, productID string, quantity int) error {
	ct, err := t.tx.Exec(ctx,
		`UPDATE products SET stock_quantity=$2, updated_at=now() WHERE id=$1`,
		productID, quantity)
	if err != nil {
		return storageErr("update stock", err)
	}
	if ct.RowsAffected() != 1 {
		return storageErr("update stock", fmt.Errorf("product %s: %d rows affected", productID, ct.RowsAffected()))
	}
	return nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, status, subtotal, shipping_total, tax_total, discount_total, grand_total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, string(o.Status),
		o.Subtotal, o.ShippingTotal, o.TaxTotal, o.DiscountTotal, o.GrandTotal,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return storageErr("insert order", err)
	}
	return nil
}

func (t *orderTx) InsertOrderItem(ctx context.Context, it *orders.OrderItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items(id, order_id, product_id, quantity, price_snapshot)
		VALUES ($1,$2,$3,$4,$5)`,
		it.ID, it.OrderID, it.ProductID, it.Quantity, it.PriceSnapshot)
	if err != nil {
		return storageErr("insert order item", err)
	}
	return nil
}

func (t *orderTx) UpdateOrderTotals(ctx context.Context, orderID string, subtotal, grandTotal decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE orders SET subtotal=$2, grand_total=$3, updated_at=now() WHERE id=$1`,
		orderID, subtotal, grandTotal)
	if err != nil {
		return storageErr("update order totals", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	var o orders.Order
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, status, subtotal, shipping_total, tax_total, discount_total, grand_total, created_at, updated_at
		FROM orders WHERE id=$1`, orderID,
	).Scan(&o.ID, &o.UserID, &status, &o.Subtotal, &o.ShippingTotal, &o.TaxTotal,
		&o.DiscountTotal, &o.GrandTotal, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, storageErr("get order", err)
	}
	o.Status = orders.Status(status)

	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price_snapshot
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, storageErr("get order items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.PriceSnapshot); err != nil {
			return nil, storageErr("get order items", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get order items", err)
	}
	return &o, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, price, stock_quantity, stock_reserved,
		       GREATEST(stock_quantity - stock_reserved, 0) AS stock_available,
		       is_active, created_at, updated_at
		FROM products WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.StockReserved,
			&p.StockAvailable, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, storageErr("list products", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}
	return out, nil
}

// UpdateOrderStatus moves an order from one status to another. A guard
// on the current status makes redeliveries a no-op: zero rows affected
// with an existing order means it already moved on.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to orders.Status) error {
	if !orders.CanTransition(from, to) {
		return fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	ct, err := s.DB.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`,
		orderID, string(from), string(to))
	if err != nil {
		return storageErr("update order status", err)
	}
	if ct.RowsAffected() == 0 {
		var one int
		err := s.DB.QueryRow(ctx, `SELECT 1 FROM orders WHERE id=$1`, orderID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.ErrOrderNotFound
		}
		if err != nil {
			return storageErr("update order status", err)
		}
	}
	return nil
}

// storageErr classifies a driver error into the retryable/non-retryable
// split the callers rely on. SQLSTATE class 23 (integrity constraint
// violation) will fail the same way again; lock-wait timeouts and
// connection faults are transient.
func storageErr(op string, err error) error {
	retryable := true
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		retryable = false
	}
	return &orders.StorageError{Op: op, Retryable: retryable, Err: err}
}
