package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/example/anon-cart/internal/platform/logger"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader messageReader
	log    *logger.Logger
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log.With("component", "KafkaConsumer", "topic", topic)}
}

// Consume feeds messages to handler until ctx is cancelled. Handler errors
// are logged and the message is skipped.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn("error reading message", "error", err)
				continue
			}

			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				c.log.Error("error handling message", "error", err, "key", string(msg.Key), "offset", msg.Offset)
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
