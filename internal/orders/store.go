package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductRow is the price and stock read under an exclusive row lock.
type ProductRow struct {
	Price         decimal.Decimal
	StockQuantity int
}

// Tx is one placement unit of work. Writes are invisible to other
// callers until the enclosing TxRunner commits; row locks taken via
// LockProduct are held until then.
type Tx interface {
	// LockProduct takes an exclusive row lock on the product and returns
	// its current price and stock quantity. Concurrent placements for
	// the same product block here until the holder commits or rolls
	// back. Returns ErrProductNotFound for unknown ids.
	LockProduct(ctx context.Context, productID string) (ProductRow, error)

	// UpdateStock sets the product's stock_quantity. Must only be called
	// while the row lock from LockProduct is held.
	UpdateStock(ctx context.Context, productID string, quantity int) error

	InsertOrder(ctx context.Context, o *Order) error
	InsertOrderItem(ctx context.Context, it *OrderItem) error
	UpdateOrderTotals(ctx context.Context, orderID string, subtotal, grandTotal decimal.Decimal) error
}

// TxRunner runs fn inside a single transaction. A nil return from fn
// commits; any error rolls the whole transaction back and is returned
// to the caller unchanged.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
