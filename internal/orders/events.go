package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced = "OrderPlaced"
	EventOrderPaid   = "OrderPaid"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

type PlacedItem struct {
	ProductID     string          `json:"product_id"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
}

type OrderPlacedPayload struct {
	OrderID    string          `json:"order_id"`
	UserID     *string         `json:"user_id,omitempty"`
	Items      []PlacedItem    `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type OrderPaidPayload struct {
	OrderID    string          `json:"order_id"`
	PaymentRef string          `json:"payment_ref"`
	Amount     decimal.Decimal `json:"amount"`
}
