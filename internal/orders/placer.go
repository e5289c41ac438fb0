package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PlaceOrderInput struct {
	UserID        *string         // nil for anonymous orders
	Items         []LineItem      // processed in the given order
	ShippingTotal decimal.Decimal // zero value means no adjustment
	TaxTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
}

// Placer turns a line-item list into a persisted order while
// decrementing stock, all inside one transaction.
type Placer struct {
	store TxRunner
	log   *zap.Logger
}

func NewPlacer(store TxRunner, log *zap.Logger) *Placer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Placer{store: store, log: log}
}

// PlaceOrder creates a pending order, then per line item locks the
// product row, snapshots the price, decrements stock and accumulates
// the subtotal. Totals are finalized before commit. Any failure rolls
// back every write, so the stores are untouched on error.
func (p *Placer) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	order := &Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Status:        StatusPending,
		Subtotal:      decimal.Zero,
		ShippingTotal: in.ShippingTotal,
		TaxTotal:      in.TaxTotal,
		DiscountTotal: in.DiscountTotal,
		GrandTotal:    decimal.Zero,
	}

	err := p.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		subtotal := decimal.Zero
		for _, li := range in.Items {
			row, err := tx.LockProduct(ctx, li.ProductID)
			if errors.Is(err, ErrProductNotFound) {
				return &ValidationError{Msg: fmt.Sprintf("unknown product: %s", li.ProductID)}
			}
			if err != nil {
				return err
			}
			// Raw stock_quantity is authoritative here; stock_reserved
			// only feeds the catalog's availability figure.
			if row.StockQuantity < li.Quantity {
				return &InsufficientStockError{
					ProductID: li.ProductID,
					Requested: li.Quantity,
					Available: row.StockQuantity,
				}
			}

			item := OrderItem{
				ID:            uuid.NewString(),
				OrderID:       order.ID,
				ProductID:     li.ProductID,
				Quantity:      li.Quantity,
				PriceSnapshot: row.Price,
			}
			if err := tx.InsertOrderItem(ctx, &item); err != nil {
				return err
			}
			if err := tx.UpdateStock(ctx, li.ProductID, row.StockQuantity-li.Quantity); err != nil {
				return err
			}
			subtotal = subtotal.Add(row.Price.Mul(decimal.NewFromInt(int64(li.Quantity))))
			order.Items = append(order.Items, item)
		}

		order.Subtotal = subtotal
		order.GrandTotal = subtotal.Add(in.ShippingTotal).Add(in.TaxTotal).Sub(in.DiscountTotal)
		return tx.UpdateOrderTotals(ctx, order.ID, order.Subtotal, order.GrandTotal)
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.Int("items", len(order.Items)),
		zap.String("grand_total", order.GrandTotal.String()),
	)
	return order, nil
}

func validate(in PlaceOrderInput) error {
	if len(in.Items) == 0 {
		return &ValidationError{Msg: "items required"}
	}
	for _, li := range in.Items {
		if li.ProductID == "" {
			return &ValidationError{Msg: "product_id required"}
		}
		if li.Quantity <= 0 {
			return &ValidationError{Msg: fmt.Sprintf("quantity must be positive for product %s", li.ProductID)}
		}
	}
	if in.ShippingTotal.IsNegative() || in.TaxTotal.IsNegative() || in.DiscountTotal.IsNegative() {
		return &ValidationError{Msg: "monetary adjustments must not be negative"}
	}
	return nil
}
