package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/platform/logger"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued results, then blocks until the context ends.
type fakeReader struct {
	mu      sync.Mutex
	results []readResult
}

type readResult struct {
	msg kafka.Message
	err error
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.results) > 0 {
		next := r.results[0]
		r.results = r.results[1:]
		r.mu.Unlock()
		return next.msg, next.err
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error { return nil }

// ============================================
// Producer Tests
// ============================================

func TestProducer_PublishCartEvent_KeyedByCart(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	ev, err := cart.NewEvent(cart.EventCartCreated, "cart-1", cart.CartCreated{CartID: "cart-1"})
	require.NoError(t, err)

	require.NoError(t, p.PublishCartEvent(context.Background(), ev))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "cart-1", string(w.messages[0].Key))

	var decoded cart.Event
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, cart.EventCartCreated, decoded.Type)
	assert.Equal(t, ev.ID, decoded.ID)
}

func TestProducer_PublishError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}}

	err := p.Publish(context.Background(), "k", map[string]string{"a": "b"})

	assert.EqualError(t, err, "broker down")
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_Consume_ContinuesPastErrors(t *testing.T) {
	r := &fakeReader{results: []readResult{
		{msg: kafka.Message{Key: []byte("a"), Value: []byte("1")}},
		{err: errors.New("transient")},
		{msg: kafka.Message{Key: []byte("b"), Value: []byte("2")}},
		{msg: kafka.Message{Key: []byte("c"), Value: []byte("3")}},
	}}
	c := &Consumer{reader: r, log: logger.Nop()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		keys []string
	)
	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
			mu.Lock()
			defer mu.Unlock()
			keys = append(keys, string(key))
			if len(keys) == 3 {
				cancel()
			}
			if string(key) == "b" {
				return errors.New("handler failed")
			}
			return nil
		})
	}()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
