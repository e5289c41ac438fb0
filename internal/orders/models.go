package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	StockQuantity  int             `json:"stock_quantity"`
	StockReserved  int             `json:"stock_reserved"`
	StockAvailable int             `json:"stock_available"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Available is the browsing figure shown in the catalog. Placement
// checks raw StockQuantity and never the reserved-adjusted value.
func (p Product) Available() int {
	if a := p.StockQuantity - p.StockReserved; a > 0 {
		return a
	}
	return 0
}

type Order struct {
	ID            string          `json:"id"`
	UserID        *string         `json:"user_id"`
	Status        Status          `json:"status"` // see status.go
	Subtotal      decimal.Decimal `json:"subtotal"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []OrderItem     `json:"items"`
}

type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	// PriceSnapshot is the product price at the instant of order
	// creation; later price changes never touch it.
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
}

// LineItem is one (product, quantity) pair of a placement request.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
