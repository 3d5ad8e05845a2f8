package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/domain/product"
	"github.com/example/anon-cart/internal/infrastructure/cache"
	"github.com/example/anon-cart/internal/infrastructure/store"
	"github.com/example/anon-cart/internal/infrastructure/store/mocks"
	"github.com/example/anon-cart/internal/platform/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []cart.Event
	err    error
}

func (p *recordingPublisher) PublishCartEvent(ctx context.Context, ev cart.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	handler   *Handler
	repo      *mocks.MockCartRepository
	catalog   *store.MemoryCatalog
	publisher *recordingPublisher
	cache     *cache.MemoryCache
	product   product.Product
}

func newTestHandler() *testEnv {
	p := product.Product{ID: uuid.NewString(), Name: "Velvet Matte Lipstick", Price: 2499, CreatedAt: time.Now().UTC()}
	catalog := store.NewMemoryCatalog(p)
	repo := mocks.NewMockCartRepository(store.NewMemoryCartStore(catalog))
	publisher := &recordingPublisher{}
	c := cache.NewMemoryCache()

	return &testEnv{
		handler:   NewHandler(repo, publisher, c, logger.Nop()),
		repo:      repo,
		catalog:   catalog,
		publisher: publisher,
		cache:     c,
		product:   p,
	}
}

func (e *testEnv) newCart(t *testing.T) *cart.Cart {
	t.Helper()
	c, _, err := e.handler.CreateCart(context.Background(), CreateCart{Input: cart.Candidate{}})
	require.NoError(t, err)
	return c
}

// ============================================
// Create Cart Tests
// ============================================

func TestHandler_CreateCart_Anonymous(t *testing.T) {
	env := newTestHandler()

	c, created, err := env.handler.CreateCart(context.Background(), CreateCart{Input: cart.Candidate{}})

	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, c.IsAnonymous())
	assert.Equal(t, []string{cart.EventCartCreated}, env.publisher.types())
}

func TestHandler_CreateCart_ClientToken_Idempotent(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	token := uuid.NewString()

	first, created1, err := env.handler.CreateCart(ctx, CreateCart{Input: cart.Candidate{"id": token}})
	require.NoError(t, err)
	second, created2, err := env.handler.CreateCart(ctx, CreateCart{Input: cart.Candidate{"id": token}})
	require.NoError(t, err)

	assert.True(t, created1)
	assert.False(t, created2)
	assert.Equal(t, first.ID, second.ID)
	// Only the first call emits CartCreated
	assert.Len(t, env.publisher.types(), 1)
}

func TestHandler_CreateCart_SubjectBecomesOwner(t *testing.T) {
	env := newTestHandler()

	c, _, err := env.handler.CreateCart(context.Background(), CreateCart{Input: cart.Candidate{}, Subject: "user-7"})

	require.NoError(t, err)
	require.NotNil(t, c.OwnerID)
	assert.Equal(t, "user-7", *c.OwnerID)
}

func TestHandler_CreateCart_OwnerMismatchWithSubject(t *testing.T) {
	env := newTestHandler()

	_, _, err := env.handler.CreateCart(context.Background(), CreateCart{
		Input:   cart.Candidate{"ownerId": "someone-else"},
		Subject: "user-7",
	})

	assert.ErrorIs(t, err, cart.ErrOwnerMismatch)
	assert.Equal(t, 0, env.repo.CallCount("CreateCart"))
}

func TestHandler_CreateCart_InvalidInput(t *testing.T) {
	env := newTestHandler()

	_, _, err := env.handler.CreateCart(context.Background(), CreateCart{Input: cart.Candidate{"id": "not-a-uuid"}})

	assert.True(t, cart.IsValidation(err))
	assert.Equal(t, 0, env.repo.CallCount("CreateCart"))
	assert.Empty(t, env.publisher.types())
}

// ============================================
// Add Item Tests
// ============================================

func TestHandler_AddItem_Success(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	c := env.newCart(t)
	var before int64
	_, err := env.cache.Get(ctx, cache.CartVersionKey(c.ID), &before)
	require.NoError(t, err)

	item, err := env.handler.AddItem(ctx, AddItem{Input: cart.Candidate{
		"cartId":    c.ID,
		"productId": env.product.ID,
		"quantity":  2,
	}})

	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, int64(2499), item.Price)
	assert.Equal(t, []string{cart.EventCartCreated, cart.EventItemAdded}, env.publisher.types())

	var after int64
	_, err = env.cache.Get(ctx, cache.CartVersionKey(c.ID), &after)
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "cart cache version should be bumped")
}

func TestHandler_AddItem_QuantityBounds(t *testing.T) {
	env := newTestHandler()
	c := env.newCart(t)

	tests := []struct {
		name     string
		quantity any
		wantErr  bool
	}{
		{"zero", 0, true},
		{"hundred", 100, true},
		{"fraction", 1.5, true},
		{"text", "lots", true},
		{"one", 1, false},
		{"ninety nine", 99, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.handler.AddItem(context.Background(), AddItem{Input: cart.Candidate{
				"cartId":    c.ID,
				"productId": env.product.ID,
				"quantity":  tt.quantity,
			}})
			if tt.wantErr {
				var verr *cart.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "quantity", verr.Fields[0].Field)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHandler_AddItem_RejectedNeverReachesRepository(t *testing.T) {
	env := newTestHandler()

	_, err := env.handler.AddItem(context.Background(), AddItem{Input: cart.Candidate{"quantity": 0}})

	var verr *cart.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Equal(t, 0, env.repo.CallCount("AddItem"))
}

func TestHandler_AddItem_ProductNotFound(t *testing.T) {
	env := newTestHandler()
	c := env.newCart(t)

	_, err := env.handler.AddItem(context.Background(), AddItem{Input: cart.Candidate{
		"cartId":    c.ID,
		"productId": uuid.NewString(),
		"quantity":  1,
	}})

	assert.ErrorIs(t, err, cart.ErrNotFound)
}

func TestHandler_AddItem_PersistenceFailure(t *testing.T) {
	env := newTestHandler()
	c := env.newCart(t)
	env.repo.AddItemErr = cart.Persistence("add item", errors.New("connection reset"))

	_, err := env.handler.AddItem(context.Background(), AddItem{Input: cart.Candidate{
		"cartId":    c.ID,
		"productId": env.product.ID,
		"quantity":  1,
	}})

	assert.True(t, cart.IsPersistence(err))
	// No event for a failed write
	assert.Equal(t, []string{cart.EventCartCreated}, env.publisher.types())
}

func TestHandler_AddItem_PublishFailureIsNotSurfaced(t *testing.T) {
	env := newTestHandler()
	c := env.newCart(t)
	env.publisher.err = errors.New("broker unavailable")

	item, err := env.handler.AddItem(context.Background(), AddItem{Input: cart.Candidate{
		"cartId":    c.ID,
		"productId": env.product.ID,
		"quantity":  1,
	}})

	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
}

func TestHandler_NilPublisher(t *testing.T) {
	repo := mocks.NewMockCartRepository(store.NewMemoryCartStore(store.NewMemoryCatalog()))
	h := NewHandler(repo, nil, nil, logger.Nop())

	_, _, err := h.CreateCart(context.Background(), CreateCart{Input: cart.Candidate{}})

	assert.NoError(t, err)
}

// ============================================
// Update / Remove Item Tests
// ============================================

func TestHandler_UpdateItemQuantity(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	c := env.newCart(t)
	item, err := env.handler.AddItem(ctx, AddItem{Input: cart.Candidate{"cartId": c.ID, "productId": env.product.ID, "quantity": 1}})
	require.NoError(t, err)

	updated, err := env.handler.UpdateItemQuantity(ctx, UpdateItemQuantity{
		ItemID: item.ID,
		Input:  cart.Candidate{"quantity": 5, "itemId": uuid.NewString()},
	})

	require.NoError(t, err)
	assert.Equal(t, item.ID, updated.ID)
	assert.Equal(t, 5, updated.Quantity)
	assert.Contains(t, env.publisher.types(), cart.EventItemQuantityUpdated)

	_, err = env.handler.UpdateItemQuantity(ctx, UpdateItemQuantity{ItemID: item.ID, Input: cart.Candidate{"quantity": 0}})
	assert.True(t, cart.IsValidation(err))
}

func TestHandler_RemoveItem(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	c := env.newCart(t)
	item, err := env.handler.AddItem(ctx, AddItem{Input: cart.Candidate{"cartId": c.ID, "productId": env.product.ID, "quantity": 1}})
	require.NoError(t, err)

	removed, err := env.handler.RemoveItem(ctx, RemoveItem{ItemID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, item.ID, removed.ID)

	_, err = env.handler.RemoveItem(ctx, RemoveItem{ItemID: item.ID})
	assert.ErrorIs(t, err, cart.ErrNotFound)

	_, err = env.handler.RemoveItem(ctx, RemoveItem{ItemID: ""})
	assert.True(t, cart.IsValidation(err))
}
