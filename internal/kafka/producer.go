package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes through an inbox channel so callers never block on
// the broker. Close stops intake; the loop flushes what is queued
// before the writer shuts down.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				_ = p.w.WriteMessages(context.Background(), m)
			case <-ctx.Done():
				p.drain()
				return
			}
		}
	}()
}

// drain flushes already-queued messages after cancellation without
// waiting for new ones.
func (p *Producer) drain() {
	defer p.w.Close()
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				return
			}
			_ = p.w.WriteMessages(context.Background(), m)
		default:
			return
		}
	}
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Close stops intake so the loop can flush the remainder and exit.
// Publish must not be called afterwards.
func (p *Producer) Close() { close(p.inbox) }

// WaitClosed blocks until the flush loop has finished.
func (p *Producer) WaitClosed() { <-p.closeCh }
