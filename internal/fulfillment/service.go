package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ekomarket/go-shop-orders/internal/kafka"
	"github.com/ekomarket/go-shop-orders/internal/orders"
	"github.com/ekomarket/go-shop-orders/internal/redisx"
)

type StatusStore interface {
	UpdateOrderStatus(ctx context.Context, orderID string, from, to orders.Status) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service consumes order.placed and moves orders pending -> paid,
// standing in for the payment collaborator that owns status
// transitions after creation.
type Service struct {
	Store       StatusStore
	Redis       *redis.Client // optional dedup
	Producer    Publisher
	ServiceName string
	Log         *zap.Logger
}

func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "fulfillment", env.EventID)
		if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	err = s.Store.UpdateOrderStatus(ctx, p.OrderID, orders.StatusPending, orders.StatusPaid)
	if errors.Is(err, orders.ErrOrderNotFound) {
		if s.Log != nil {
			s.Log.Warn("order.placed for unknown order", zap.String("order_id", p.OrderID))
		}
		return nil
	}
	if err != nil {
		return err
	}

	s.publishPaid(p, env.TraceID)
	return nil
}

func (s *Service) publishPaid(p orders.OrderPlacedPayload, trace string) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPaid,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: p.OrderID,
		Payload: kafkax.MustMarshal(orders.OrderPaidPayload{
			OrderID:    p.OrderID,
			PaymentRef: uuid.NewString(),
			Amount:     p.GrandTotal,
		}),
	}
	s.Producer.Publish(orders.PartitionKey(p.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPaid)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
