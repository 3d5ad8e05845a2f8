package cartsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/example/anon-cart/internal/client/identity"
	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/platform/logger"
)

// Fetcher is the part of the cart API the sync layer drives.
type Fetcher interface {
	CreateCart(ctx context.Context, req CreateCartRequest) (*cart.Cart, bool, error)
	GetCart(ctx context.Context, id string) (*cart.Cart, error)
	GetCartItems(ctx context.Context, cartID string) ([]cart.CartItem, error)
	AddItem(ctx context.Context, req AddItemRequest) (*cart.CartItem, error)
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) (*cart.CartItem, error)
	RemoveItem(ctx context.Context, itemID string) (*cart.CartItem, error)
}

const (
	kindCart  = "cart"
	kindItems = "cart-items"
)

// Sync keeps a local, consistent view of the visitor's cart. Reads are
// cached per (kind, token) and concurrent reads of one key share a single
// request. Mutations invalidate every key of the affected token.
//
// The token names the cart the visitor asks for, but the server decides
// which cart it gets: a signed-in owner who already has a cart is handed
// that one. Sync addresses the server by the cart id it was given.
type Sync struct {
	api          Fetcher
	identity     *identity.Manager
	log          *logger.Logger
	group        singleflight.Group
	fetchTimeout time.Duration

	mu      sync.Mutex
	entries map[string]any
	gens    map[string]uint64 // token -> generation, bumped on invalidation
	carts   map[string]string // token -> server cart id, set by EnsureCart
}

const defaultFetchTimeout = 30 * time.Second

func NewSync(api Fetcher, ids *identity.Manager, log *logger.Logger) *Sync {
	return &Sync{
		api:          api,
		identity:     ids,
		log:          log.With("component", "CartSync"),
		fetchTimeout: defaultFetchTimeout,
		entries:      make(map[string]any),
		gens:         make(map[string]uint64),
		carts:        make(map[string]string),
	}
}

// Snapshot is the cart and its items as read together.
type Snapshot struct {
	Cart  *cart.Cart
	Items []cart.CartItem
}

func (s Snapshot) Total() int64 {
	var total int64
	for _, item := range s.Items {
		total += item.Subtotal()
	}
	return total
}

// Token returns the visitor's cart token, creating it if needed.
func (s *Sync) Token(ctx context.Context) string {
	return s.identity.GetOrCreate(ctx)
}

// EnsureCart announces the visitor's token to the server and records the
// cart the server answers with. Creation by token is idempotent
// server-side, so repeating it after a reload is safe.
func (s *Sync) EnsureCart(ctx context.Context) (*cart.Cart, error) {
	token := s.Token(ctx)
	c, created, err := s.api.CreateCart(ctx, CreateCartRequest{ID: token})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	previous, known := s.carts[token]
	s.carts[token] = c.ID
	s.mu.Unlock()
	if known && previous != c.ID {
		s.Invalidate(token)
	}

	if created {
		s.log.Debug("created cart", "cartId", c.ID)
	} else if c.ID != token {
		s.log.Debug("token resolved to existing cart", "cartId", c.ID)
	}
	return c, nil
}

// ensure returns the server cart id for token, announcing the token first
// if this Sync has not done so yet.
func (s *Sync) ensure(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	cartID, ok := s.carts[token]
	s.mu.Unlock()
	if ok {
		return cartID, nil
	}
	c, err := s.EnsureCart(ctx)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// Cart returns the visitor's cart with items.
func (s *Sync) Cart(ctx context.Context) (*cart.Cart, error) {
	token := s.Token(ctx)
	cartID, err := s.ensure(ctx, token)
	if err != nil {
		return nil, err
	}
	v, err := s.read(ctx, kindCart, token, func(ctx context.Context) (any, error) {
		return s.api.GetCart(ctx, cartID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*cart.Cart), nil
}

// Items returns the visitor's cart items in insertion order.
func (s *Sync) Items(ctx context.Context) ([]cart.CartItem, error) {
	token := s.Token(ctx)
	cartID, err := s.ensure(ctx, token)
	if err != nil {
		return nil, err
	}
	v, err := s.read(ctx, kindItems, token, func(ctx context.Context) (any, error) {
		return s.api.GetCartItems(ctx, cartID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]cart.CartItem), nil
}

// Snapshot fetches the cart and its items concurrently.
func (s *Sync) Snapshot(ctx context.Context) (*Snapshot, error) {
	if _, err := s.ensure(ctx, s.Token(ctx)); err != nil {
		return nil, err
	}

	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.Cart(gctx)
		snap.Cart = c
		return err
	})
	g.Go(func() error {
		items, err := s.Items(gctx)
		snap.Items = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Sync) AddItem(ctx context.Context, productID string, quantity int) (*cart.CartItem, error) {
	token := s.Token(ctx)
	cartID, err := s.ensure(ctx, token)
	if err != nil {
		return nil, err
	}
	item, err := s.api.AddItem(ctx, AddItemRequest{CartID: cartID, ProductID: productID, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	s.Invalidate(token)
	return item, nil
}

func (s *Sync) UpdateQuantity(ctx context.Context, itemID string, quantity int) (*cart.CartItem, error) {
	item, err := s.api.UpdateItemQuantity(ctx, itemID, quantity)
	if err != nil {
		return nil, err
	}
	s.invalidateCart(ctx, item.CartID)
	return item, nil
}

func (s *Sync) RemoveItem(ctx context.Context, itemID string) (*cart.CartItem, error) {
	item, err := s.api.RemoveItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.invalidateCart(ctx, item.CartID)
	return item, nil
}

// invalidateCart invalidates every token known to resolve to cartID, and
// the current token.
func (s *Sync) invalidateCart(ctx context.Context, cartID string) {
	tokens := []string{cartID}
	if token, ok := s.identity.Current(ctx); ok {
		tokens = append(tokens, token)
	}
	s.mu.Lock()
	for token, id := range s.carts {
		if id == cartID {
			tokens = append(tokens, token)
		}
	}
	s.mu.Unlock()

	for _, token := range tokens {
		s.Invalidate(token)
	}
}

// Invalidate drops every cached read for token. Fetches already in flight
// for token will not repopulate the cache.
func (s *Sync) Invalidate(token string) {
	s.mu.Lock()
	s.gens[token]++
	for _, kind := range []string{kindCart, kindItems} {
		delete(s.entries, cacheKey(kind, token))
	}
	s.mu.Unlock()

	for _, kind := range []string{kindCart, kindItems} {
		s.group.Forget(cacheKey(kind, token))
	}
}

// Reset forgets the visitor's token and all cached state. The next call
// starts a new cart.
func (s *Sync) Reset(ctx context.Context) error {
	if token, ok := s.identity.Current(ctx); ok {
		s.Invalidate(token)
	}
	s.mu.Lock()
	s.carts = make(map[string]string)
	s.mu.Unlock()
	return s.identity.Clear(ctx)
}

// read serves key from the cache or joins a shared fetch. The fetch runs
// detached from any one caller, so a caller that gives up does not fail the
// others waiting on it.
func (s *Sync) read(ctx context.Context, kind, token string, fetch func(context.Context) (any, error)) (any, error) {
	key := cacheKey(kind, token)

	s.mu.Lock()
	if v, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	gen := s.gens[token]
	s.mu.Unlock()

	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.gens[token] == gen {
			s.entries[key] = v
		}
		s.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s: %w", kind, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("fetch %s: %w", kind, res.Err)
		}
		return res.Val, nil
	}
}

func cacheKey(kind, token string) string {
	return kind + ":" + token
}
