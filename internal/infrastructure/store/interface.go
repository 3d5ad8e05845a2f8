package store

import (
	"context"

	"github.com/example/anon-cart/internal/domain/cart"
)

// CartRepository persists carts and their items. Write methods accept only
// values produced by the cart validation gate.
type CartRepository interface {
	// CreateCart returns the stored cart and whether this call inserted it.
	CreateCart(ctx context.Context, in cart.NewCart) (*cart.Cart, bool, error)
	GetCart(ctx context.Context, id string, withItems bool) (*cart.Cart, error)
	// LatestCart returns the most recently updated cart with items, or nil.
	LatestCart(ctx context.Context) (*cart.Cart, error)
	GetCartItems(ctx context.Context, cartID string) ([]cart.CartItem, error)
	AddItem(ctx context.Context, in cart.NewItem) (*cart.CartItem, error)
	UpdateItemQuantity(ctx context.Context, in cart.QuantityUpdate) (*cart.CartItem, error)
	RemoveItem(ctx context.Context, itemID string) (*cart.CartItem, error)
}
