package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/ekomarket/go-shop-orders/internal/kafka"
	"github.com/ekomarket/go-shop-orders/internal/orders"
	"github.com/ekomarket/go-shop-orders/internal/redisx"
)

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, in orders.PlaceOrderInput) (*orders.Order, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Placer   OrderPlacer
	Reader   OrderReader
	Producer Publisher
	Redis    *redis.Client // optional; cache and events are best-effort
	Service  string
}

type PlaceOrderReq struct {
	UserID        *string           `json:"user_id"`
	Items         []orders.LineItem `json:"items"`
	ShippingTotal decimal.Decimal   `json:"shipping_total"`
	TaxTotal      decimal.Decimal   `json:"tax_total"`
	DiscountTotal decimal.Decimal   `json:"discount_total"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/products", h.listProducts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ve *orders.ValidationError
	var ise *orders.InsufficientStockError
	var se *orders.StorageError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Msg})
	case errors.As(err, &ise):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": ise.ProductID,
			"requested":  ise.Requested,
			"available":  ise.Available,
		})
	case errors.As(err, &se) && se.Retryable:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable, retry later"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Placer.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID:        req.UserID,
		Items:         req.Items,
		ShippingTotal: req.ShippingTotal,
		TaxTotal:      req.TaxTotal,
		DiscountTotal: req.DiscountTotal,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheOrder(ctx, order)
	h.publishPlaced(r, order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrder, o.ID)
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(o), redisx.TTLOrderCache).Err()
}

// publishPlaced runs after commit; a lost event never un-commits the
// order, and fulfillment relies on redelivery plus dedup instead.
func (h *OrdersHandler) publishPlaced(r *http.Request, o *orders.Order) {
	if h.Producer == nil {
		return
	}
	items := make([]orders.PlacedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.PlacedItem{
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			PriceSnapshot: it.PriceSnapshot,
		})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID:    o.ID,
			UserID:     o.UserID,
			Items:      items,
			Subtotal:   o.Subtotal,
			GrandTotal: o.GrandTotal,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrder, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	order, err := h.Reader.GetOrder(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheOrder(ctx, order)
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Reader.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
