package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/platform/logger"
)

// Invalidator bumps the cache versions of carts named in cart events. HandleEvent
// matches the kafka consumer's message handler signature.
type Invalidator struct {
	cache Cache
	log   *logger.Logger
}

func NewInvalidator(c Cache, log *logger.Logger) *Invalidator {
	return &Invalidator{cache: c, log: log.With("component", "CacheInvalidator")}
}

func (i *Invalidator) HandleEvent(ctx context.Context, key, value []byte) error {
	var ev cart.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("decode cart event: %w", err)
	}
	cartID := ev.CartID
	if cartID == "" {
		cartID = string(key)
	}
	if cartID == "" {
		i.log.Warn("cart event without cart id", "type", ev.Type, "eventId", ev.ID)
		return nil
	}

	if err := InvalidateCart(ctx, i.cache, cartID); err != nil {
		return fmt.Errorf("invalidate cart %s: %w", cartID, err)
	}
	i.log.Debug("invalidated cart", "cartId", cartID, "type", ev.Type)
	return nil
}
