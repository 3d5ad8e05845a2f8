package query

import (
	"context"
	"errors"
	"time"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/domain/product"
	"github.com/example/anon-cart/internal/infrastructure/cache"
	"github.com/example/anon-cart/internal/infrastructure/store"
	"github.com/example/anon-cart/internal/platform/logger"
)

// Handler serves cart and catalog reads through the server-side cache.
type Handler struct {
	repo    store.CartRepository
	catalog product.Catalog
	cache   cache.Cache
	ttl     time.Duration
	log     *logger.Logger
}

func NewHandler(
	repo store.CartRepository,
	catalog product.Catalog,
	c cache.Cache,
	ttl time.Duration,
	log *logger.Logger,
) *Handler {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Handler{
		repo:    repo,
		catalog: catalog,
		cache:   c,
		ttl:     ttl,
		log:     log.With("component", "QueryHandler"),
	}
}

// Cart

// LatestCart returns the most recently updated cart, or nil when none exist.
func (h *Handler) LatestCart(ctx context.Context) (*CartReadModel, error) {
	key, cacheable := h.versioned(ctx, cache.LatestCartKey, cache.LatestVersionKey)

	var rm *CartReadModel
	if cacheable && h.fromCache(ctx, key, &rm) && rm != nil {
		return rm, nil
	}

	c, err := h.repo.LatestCart(ctx)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	rm = NewCartReadModel(c)
	if cacheable {
		h.toCache(ctx, key, rm)
	}
	return rm, nil
}

func (h *Handler) GetCart(ctx context.Context, id string) (*CartReadModel, error) {
	id, err := cart.ValidateID("id", id)
	if err != nil {
		return nil, err
	}

	key, cacheable := h.versioned(ctx, cache.CartKey(id), cache.CartVersionKey(id))

	var rm *CartReadModel
	if cacheable && h.fromCache(ctx, key, &rm) && rm != nil {
		return rm, nil
	}

	c, err := h.repo.GetCart(ctx, id, true)
	if err != nil {
		return nil, err
	}
	rm = NewCartReadModel(c)
	if cacheable {
		h.toCache(ctx, key, rm)
	}
	return rm, nil
}

// GetCartItems lists a cart's items in insertion order
func (h *Handler) GetCartItems(ctx context.Context, cartID string) ([]cart.CartItem, error) {
	cartID, err := cart.ValidateID("cartId", cartID)
	if err != nil {
		return nil, err
	}

	key, cacheable := h.versioned(ctx, cache.CartItemsKey(cartID), cache.CartVersionKey(cartID))

	var items []cart.CartItem
	if cacheable && h.fromCache(ctx, key, &items) && items != nil {
		return items, nil
	}

	items, err = h.repo.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		h.toCache(ctx, key, items)
	}
	return items, nil
}

// Products

func (h *Handler) ListProducts(ctx context.Context, limit int) ([]product.Product, error) {
	limit = product.ClampLimit(limit)
	key := cache.ProductListKey(limit)

	var products []product.Product
	if h.fromCache(ctx, key, &products) && products != nil {
		return products, nil
	}

	products, err := h.catalog.ListProducts(ctx, limit)
	if err != nil {
		h.log.Error("list products failed", "limit", limit, "error", err)
		return nil, cart.Persistence("list products", err)
	}
	h.toCache(ctx, key, products)
	return products, nil
}

func (h *Handler) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	id, err := cart.ValidateID("id", id)
	if err != nil {
		return nil, err
	}

	var p *product.Product
	if h.fromCache(ctx, cache.ProductKey(id), &p) && p != nil {
		return p, nil
	}

	p, err = h.catalog.GetProduct(ctx, id)
	if errors.Is(err, product.ErrProductNotFound) {
		return nil, cart.ProductNotFound(id)
	}
	if err != nil {
		h.log.Error("get product failed", "productId", id, "error", err)
		return nil, cart.Persistence("get product", err)
	}
	h.toCache(ctx, cache.ProductKey(id), p)
	return p, nil
}

// versioned returns key qualified by the current value of its version
// counter. The version is read before the repository so a write committed
// after that read bumps it and orphans whatever this read stores. When the
// version is unreadable the caller skips the cache.
func (h *Handler) versioned(ctx context.Context, key, versionKey string) (string, bool) {
	var v int64
	if _, err := h.cache.Get(ctx, versionKey, &v); err != nil {
		h.log.Warn("cache version read failed", "key", versionKey, "error", err)
		return "", false
	}
	return cache.Versioned(key, v), true
}

// fromCache reports a hit. Cache errors are logged and treated as a miss.
func (h *Handler) fromCache(ctx context.Context, key string, dest any) bool {
	hit, err := h.cache.Get(ctx, key, dest)
	if err != nil {
		h.log.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (h *Handler) toCache(ctx context.Context, key string, v any) {
	if h.ttl <= 0 {
		return
	}
	if err := h.cache.Set(ctx, key, v, h.ttl); err != nil {
		h.log.Warn("cache write failed", "key", key, "error", err)
	}
}
