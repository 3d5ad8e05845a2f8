package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/domain/product"
)

// MemoryCartStore is an in-memory CartRepository for development and tests.
// It has the same observable semantics as PostgresCartStore.
type MemoryCartStore struct {
	mu      sync.Mutex
	catalog product.Catalog

	carts     map[string]*cart.Cart // cartID -> cart without items
	owners    map[string]string     // ownerID -> cartID
	touched   map[string]uint64     // cartID -> write sequence, for LatestCart
	items     map[string]*cart.CartItem
	cartItems map[string][]string // cartID -> itemIDs in insertion order
	seq       uint64
}

func NewMemoryCartStore(catalog product.Catalog) *MemoryCartStore {
	return &MemoryCartStore{
		catalog:   catalog,
		carts:     make(map[string]*cart.Cart),
		owners:    make(map[string]string),
		touched:   make(map[string]uint64),
		items:     make(map[string]*cart.CartItem),
		cartItems: make(map[string][]string),
	}
}

func (s *MemoryCartStore) CreateCart(ctx context.Context, in cart.NewCart) (*cart.Cart, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.HasOwner() {
		owner := in.OwnerID()
		if id, ok := s.owners[owner]; ok {
			return s.cartCopy(id, false), false, nil
		}
		if in.ID() != "" {
			if existing, ok := s.carts[in.ID()]; ok {
				if existing.OwnerID != nil {
					return nil, false, cart.ErrOwnerMismatch
				}
				existing.OwnerID = &owner
				existing.UpdatedAt = time.Now().UTC()
				s.owners[owner] = existing.ID
				s.touch(existing.ID)
				return s.cartCopy(existing.ID, false), false, nil
			}
		}
		c := s.insert(in.ID(), &owner)
		return c, true, nil
	}

	if in.ID() != "" {
		if _, ok := s.carts[in.ID()]; ok {
			return s.cartCopy(in.ID(), false), false, nil
		}
	}
	return s.insert(in.ID(), nil), true, nil
}

func (s *MemoryCartStore) insert(id string, owner *string) *cart.Cart {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	s.carts[id] = &cart.Cart{ID: id, OwnerID: owner, CreatedAt: now, UpdatedAt: now}
	if owner != nil {
		s.owners[*owner] = id
	}
	s.touch(id)
	return s.cartCopy(id, false)
}

func (s *MemoryCartStore) GetCart(ctx context.Context, id string, withItems bool) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[id]; !ok {
		return nil, cart.CartNotFound(id)
	}
	return s.cartCopy(id, withItems), nil
}

func (s *MemoryCartStore) LatestCart(ctx context.Context) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest string
		best   uint64
	)
	for id, seq := range s.touched {
		if seq > best {
			latest, best = id, seq
		}
	}
	if latest == "" {
		return nil, nil
	}
	return s.cartCopy(latest, true), nil
}

func (s *MemoryCartStore) GetCartItems(ctx context.Context, cartID string) ([]cart.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return nil, cart.CartNotFound(cartID)
	}
	return s.itemsOf(cartID), nil
}

func (s *MemoryCartStore) AddItem(ctx context.Context, in cart.NewItem) (*cart.CartItem, error) {
	p, err := s.catalog.GetProduct(ctx, in.ProductID())
	if errors.Is(err, product.ErrProductNotFound) {
		// Cart existence is reported first, matching the SQL store.
		s.mu.Lock()
		_, ok := s.carts[in.CartID()]
		s.mu.Unlock()
		if !ok {
			return nil, cart.CartNotFound(in.CartID())
		}
		return nil, cart.ProductNotFound(in.ProductID())
	}
	if err != nil {
		return nil, cart.Persistence("add item", err)
	}

	price, err := cart.ValidatePrice(p.Price)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[in.CartID()]
	if !ok {
		return nil, cart.CartNotFound(in.CartID())
	}

	now := time.Now().UTC()
	item := &cart.CartItem{
		ID:        uuid.New().String(),
		CartID:    in.CartID(),
		ProductID: in.ProductID(),
		Quantity:  in.Quantity(),
		Price:     price,
		Product:   p,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[item.ID] = item
	s.cartItems[c.ID] = append(s.cartItems[c.ID], item.ID)
	c.UpdatedAt = now
	s.touch(c.ID)

	out := *item
	return &out, nil
}

func (s *MemoryCartStore) UpdateItemQuantity(ctx context.Context, in cart.QuantityUpdate) (*cart.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[in.ItemID()]
	if !ok {
		return nil, cart.ItemNotFound(in.ItemID())
	}
	now := time.Now().UTC()
	item.Quantity = in.Quantity()
	item.UpdatedAt = now
	if c, ok := s.carts[item.CartID]; ok {
		c.UpdatedAt = now
		s.touch(c.ID)
	}

	out := *item
	return &out, nil
}

func (s *MemoryCartStore) RemoveItem(ctx context.Context, itemID string) (*cart.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, cart.ItemNotFound(itemID)
	}
	delete(s.items, itemID)

	ids := s.cartItems[item.CartID]
	for i, id := range ids {
		if id == itemID {
			s.cartItems[item.CartID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if c, ok := s.carts[item.CartID]; ok {
		c.UpdatedAt = time.Now().UTC()
		s.touch(c.ID)
	}

	out := *item
	out.Product = nil
	return &out, nil
}

func (s *MemoryCartStore) touch(cartID string) {
	s.seq++
	s.touched[cartID] = s.seq
}

// cartCopy must be called with mu held.
func (s *MemoryCartStore) cartCopy(id string, withItems bool) *cart.Cart {
	out := *s.carts[id]
	if out.OwnerID != nil {
		owner := *out.OwnerID
		out.OwnerID = &owner
	}
	out.Items = []cart.CartItem{}
	if withItems {
		out.Items = s.itemsOf(id)
	}
	return &out
}

// itemsOf must be called with mu held.
func (s *MemoryCartStore) itemsOf(cartID string) []cart.CartItem {
	ids := s.cartItems[cartID]
	items := make([]cart.CartItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, *s.items[id])
	}
	return items
}

// MemoryCatalog is an in-memory product.Catalog.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*product.Product
}

func NewMemoryCatalog(products ...product.Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[string]*product.Product)}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

func (c *MemoryCatalog) Put(p product.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = &p
}

// SetPrice changes the live price of a product.
func (c *MemoryCatalog) SetPrice(id string, price int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return false
	}
	p.Price = price
	return true
}

func (c *MemoryCatalog) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	out := *p
	return &out, nil
}

func (c *MemoryCatalog) ListProducts(ctx context.Context, limit int) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	products := make([]product.Product, 0, len(c.products))
	for _, p := range c.products {
		products = append(products, *p)
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.Before(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})

	if limit = product.ClampLimit(limit); len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// UpsertProducts satisfies the seeding contract used by cmd/seed.
func (c *MemoryCatalog) UpsertProducts(ctx context.Context, products []product.Product) error {
	for _, p := range products {
		c.Put(p)
	}
	return nil
}
