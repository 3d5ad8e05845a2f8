package mocks

import (
	"context"
	"sync"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/infrastructure/store"
)

// MockCartRepository is a CartRepository for testing. It delegates to an
// in-memory store unless an error is injected for the called method.
type MockCartRepository struct {
	mu       sync.Mutex
	delegate *store.MemoryCartStore

	// For tracking calls in tests
	Calls []string

	// Injected errors, returned instead of delegating when set
	CreateCartErr         error
	GetCartErr            error
	LatestCartErr         error
	GetCartItemsErr       error
	AddItemErr            error
	UpdateItemQuantityErr error
	RemoveItemErr         error
}

// NewMockCartRepository creates a MockCartRepository backed by delegate
func NewMockCartRepository(delegate *store.MemoryCartStore) *MockCartRepository {
	return &MockCartRepository{
		delegate: delegate,
		Calls:    make([]string, 0),
	}
}

func (m *MockCartRepository) record(method string, injected error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
	return injected
}

// CallCount returns how many times method was called
func (m *MockCartRepository) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and injected errors
func (m *MockCartRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]string, 0)
	m.CreateCartErr = nil
	m.GetCartErr = nil
	m.LatestCartErr = nil
	m.GetCartItemsErr = nil
	m.AddItemErr = nil
	m.UpdateItemQuantityErr = nil
	m.RemoveItemErr = nil
}

func (m *MockCartRepository) CreateCart(ctx context.Context, in cart.NewCart) (*cart.Cart, bool, error) {
	if err := m.record("CreateCart", m.CreateCartErr); err != nil {
		return nil, false, err
	}
	return m.delegate.CreateCart(ctx, in)
}

func (m *MockCartRepository) GetCart(ctx context.Context, id string, withItems bool) (*cart.Cart, error) {
	if err := m.record("GetCart", m.GetCartErr); err != nil {
		return nil, err
	}
	return m.delegate.GetCart(ctx, id, withItems)
}

func (m *MockCartRepository) LatestCart(ctx context.Context) (*cart.Cart, error) {
	if err := m.record("LatestCart", m.LatestCartErr); err != nil {
		return nil, err
	}
	return m.delegate.LatestCart(ctx)
}

func (m *MockCartRepository) GetCartItems(ctx context.Context, cartID string) ([]cart.CartItem, error) {
	if err := m.record("GetCartItems", m.GetCartItemsErr); err != nil {
		return nil, err
	}
	return m.delegate.GetCartItems(ctx, cartID)
}

func (m *MockCartRepository) AddItem(ctx context.Context, in cart.NewItem) (*cart.CartItem, error) {
	if err := m.record("AddItem", m.AddItemErr); err != nil {
		return nil, err
	}
	return m.delegate.AddItem(ctx, in)
}

func (m *MockCartRepository) UpdateItemQuantity(ctx context.Context, in cart.QuantityUpdate) (*cart.CartItem, error) {
	if err := m.record("UpdateItemQuantity", m.UpdateItemQuantityErr); err != nil {
		return nil, err
	}
	return m.delegate.UpdateItemQuantity(ctx, in)
}

func (m *MockCartRepository) RemoveItem(ctx context.Context, itemID string) (*cart.CartItem, error) {
	if err := m.record("RemoveItem", m.RemoveItemErr); err != nil {
		return nil, err
	}
	return m.delegate.RemoveItem(ctx, itemID)
}

var _ store.CartRepository = (*MockCartRepository)(nil)
