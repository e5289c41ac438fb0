package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekomarket/go-shop-orders/internal/httpx"
	"github.com/ekomarket/go-shop-orders/internal/orders"
)

type stubPlacer struct {
	gotInput orders.PlaceOrderInput
	order    *orders.Order
	err      error
}

func (s *stubPlacer) PlaceOrder(_ context.Context, in orders.PlaceOrderInput) (*orders.Order, error) {
	s.gotInput = in
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

type stubReader struct {
	order    *orders.Order
	orderErr error
	products []orders.Product
}

func (s *stubReader) GetOrder(context.Context, string) (*orders.Order, error) {
	return s.order, s.orderErr
}

func (s *stubReader) ListProducts(context.Context) ([]orders.Product, error) {
	return s.products, nil
}

type capturedEvent struct {
	key   []byte
	value []byte
}

type stubProducer struct{ published []capturedEvent }

func (s *stubProducer) Publish(key, value []byte, _ ...kafkago.Header) {
	s.published = append(s.published, capturedEvent{key: key, value: value})
}

func setupRouter(placer *stubPlacer, reader *stubReader, prod *stubProducer) http.Handler {
	r := httpx.NewRouter()
	h := &httpx.OrdersHandler{
		Placer:   placer,
		Reader:   reader,
		Producer: prod,
		Service:  "test-api",
	}
	h.Register(r)
	return r
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPlaceOrderEndpoint(t *testing.T) {
	userID := "u-1"
	placed := &orders.Order{
		ID:         "o-1",
		UserID:     &userID,
		Status:     orders.StatusPending,
		Subtotal:   decimal.RequireFromString("50.00"),
		GrandTotal: decimal.RequireFromString("56.00"),
		Items: []orders.OrderItem{{
			ID: "i-1", OrderID: "o-1", ProductID: "p-1", Quantity: 2,
			PriceSnapshot: decimal.RequireFromString("25.00"),
		}},
	}
	placer := &stubPlacer{order: placed}
	prod := &stubProducer{}
	router := setupRouter(placer, &stubReader{}, prod)

	rec := postJSON(t, router, "/orders", map[string]any{
		"user_id":        userID,
		"items":          []map[string]any{{"product_id": "p-1", "quantity": 2}},
		"shipping_total": "5.00",
		"tax_total":      "2.00",
		"discount_total": "1.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "o-1", resp.ID)
	assert.True(t, decimal.RequireFromString("56.00").Equal(resp.GrandTotal))

	// Input passed through to the core.
	require.Len(t, placer.gotInput.Items, 1)
	assert.Equal(t, "p-1", placer.gotInput.Items[0].ProductID)
	assert.True(t, decimal.RequireFromString("5.00").Equal(placer.gotInput.ShippingTotal))

	// Event published after success, keyed by order id.
	require.Len(t, prod.published, 1)
	assert.Equal(t, []byte("o-1"), prod.published[0].key)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(prod.published[0].value, &env))
	assert.Equal(t, orders.EventOrderPlaced, env.EventType)
	assert.Equal(t, "o-1", env.CorrelationID)
}

func TestPlaceOrderEndpointErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &orders.ValidationError{Msg: "items required"}, http.StatusBadRequest},
		{"insufficient stock", &orders.InsufficientStockError{ProductID: "p-1", Requested: 5, Available: 2}, http.StatusConflict},
		{"retryable storage", &orders.StorageError{Op: "begin", Retryable: true, Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"constraint violation", &orders.StorageError{Op: "insert order", Retryable: false, Err: errors.New("violates foreign key")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prod := &stubProducer{}
			router := setupRouter(&stubPlacer{err: tc.err}, &stubReader{}, prod)
			rec := postJSON(t, router, "/orders", map[string]any{
				"items": []map[string]any{{"product_id": "p-1", "quantity": 5}},
			})
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Empty(t, prod.published, "no event on failure")
		})
	}
}

func TestPlaceOrderEndpointBadJSON(t *testing.T) {
	router := setupRouter(&stubPlacer{}, &stubReader{}, &stubProducer{})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderEndpoint(t *testing.T) {
	reader := &stubReader{order: &orders.Order{ID: "o-1", Status: orders.StatusPending}}
	router := setupRouter(&stubPlacer{}, reader, &stubProducer{})

	req := httptest.NewRequest(http.MethodGet, "/orders/o-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orders.StatusPending, resp.Status)
}

func TestGetOrderEndpointNotFound(t *testing.T) {
	reader := &stubReader{orderErr: orders.ErrOrderNotFound}
	router := setupRouter(&stubPlacer{}, reader, &stubProducer{})

	req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProductsEndpoint(t *testing.T) {
	reader := &stubReader{products: []orders.Product{
		{ID: "p-1", Name: "widget", Price: decimal.RequireFromString("25.00"), StockQuantity: 10, StockReserved: 3, StockAvailable: 7, IsActive: true},
	}}
	router := setupRouter(&stubPlacer{}, reader, &stubProducer{})

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []orders.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, 7, resp[0].StockAvailable)
}
