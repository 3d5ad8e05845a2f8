package command

import (
	"context"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/infrastructure/cache"
	"github.com/example/anon-cart/internal/infrastructure/kafka"
	"github.com/example/anon-cart/internal/infrastructure/store"
	"github.com/example/anon-cart/internal/platform/logger"
)

// Handler runs cart writes: validate, persist, publish, invalidate.
type Handler struct {
	repo      store.CartRepository
	publisher kafka.EventPublisher
	cache     cache.Cache
	log       *logger.Logger
}

// NewHandler wires the write side. publisher may be nil when events are
// disabled, and a nil cache disables invalidation.
func NewHandler(
	repo store.CartRepository,
	publisher kafka.EventPublisher,
	c cache.Cache,
	log *logger.Logger,
) *Handler {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Handler{
		repo:      repo,
		publisher: publisher,
		cache:     c,
		log:       log.With("component", "CommandHandler"),
	}
}

// CreateCart fetches or creates a cart. created is false when an existing
// cart was returned.
func (h *Handler) CreateCart(ctx context.Context, cmd CreateCart) (*cart.Cart, bool, error) {
	in, err := cart.ValidateNewCart(cmd.Input)
	if err != nil {
		return nil, false, err
	}
	if cmd.Subject != "" {
		if in.HasOwner() && in.OwnerID() != cmd.Subject {
			return nil, false, cart.ErrOwnerMismatch
		}
		in = in.WithOwner(cmd.Subject)
	}

	c, created, err := h.repo.CreateCart(ctx, in)
	if err != nil {
		return nil, false, err
	}

	if created {
		h.publish(ctx, cart.EventCartCreated, c.ID, cart.CartCreated{CartID: c.ID, OwnerID: c.OwnerID})
	}
	h.invalidate(ctx, c.ID)
	return c, created, nil
}

// AddItem adds a line to a cart at the product's current price
func (h *Handler) AddItem(ctx context.Context, cmd AddItem) (*cart.CartItem, error) {
	in, err := cart.ValidateNewItem(cmd.Input)
	if err != nil {
		return nil, err
	}

	item, err := h.repo.AddItem(ctx, in)
	if err != nil {
		return nil, err
	}

	h.publish(ctx, cart.EventItemAdded, item.CartID, cart.ItemAdded{
		ItemID:    item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Price:     item.Price,
	})
	h.invalidate(ctx, item.CartID)
	return item, nil
}

// UpdateItemQuantity sets an item's quantity. The path id wins over any
// itemId in the body.
func (h *Handler) UpdateItemQuantity(ctx context.Context, cmd UpdateItemQuantity) (*cart.CartItem, error) {
	input := cart.Candidate{}
	for k, v := range cmd.Input {
		input[k] = v
	}
	input["itemId"] = cmd.ItemID

	upd, err := cart.ValidateQuantityUpdate(input)
	if err != nil {
		return nil, err
	}

	item, err := h.repo.UpdateItemQuantity(ctx, upd)
	if err != nil {
		return nil, err
	}

	h.publish(ctx, cart.EventItemQuantityUpdated, item.CartID, cart.ItemQuantityUpdated{
		ItemID:   item.ID,
		Quantity: item.Quantity,
	})
	h.invalidate(ctx, item.CartID)
	return item, nil
}

// RemoveItem deletes an item and returns it
func (h *Handler) RemoveItem(ctx context.Context, cmd RemoveItem) (*cart.CartItem, error) {
	id, err := cart.ValidateID("itemId", cmd.ItemID)
	if err != nil {
		return nil, err
	}

	item, err := h.repo.RemoveItem(ctx, id)
	if err != nil {
		return nil, err
	}

	h.publish(ctx, cart.EventItemRemoved, item.CartID, cart.ItemRemoved{
		ItemID:    item.ID,
		ProductID: item.ProductID,
	})
	h.invalidate(ctx, item.CartID)
	return item, nil
}

// publish is best effort. The write has already committed.
func (h *Handler) publish(ctx context.Context, eventType, cartID string, payload any) {
	if h.publisher == nil {
		return
	}
	ev, err := cart.NewEvent(eventType, cartID, payload)
	if err != nil {
		h.log.Error("failed to build cart event", "type", eventType, "cartId", cartID, "error", err)
		return
	}
	if err := h.publisher.PublishCartEvent(ctx, ev); err != nil {
		h.log.Warn("failed to publish cart event", "type", eventType, "cartId", cartID, "error", err)
	}
}

func (h *Handler) invalidate(ctx context.Context, cartID string) {
	if err := cache.InvalidateCart(ctx, h.cache, cartID); err != nil {
		h.log.Warn("failed to invalidate cart cache", "cartId", cartID, "error", err)
	}
}
