package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/anon-cart/internal/domain/cart"
)

// EventPublisher publishes committed cart events.
type EventPublisher interface {
	PublishCartEvent(ctx context.Context, event cart.Event) error
}

type Producer struct {
	writer messageWriter
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
}

// PublishCartEvent keys the message by cart id so a cart's events stay
// ordered within one partition.
func (p *Producer) PublishCartEvent(ctx context.Context, event cart.Event) error {
	return p.Publish(ctx, event.CartID, event)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
