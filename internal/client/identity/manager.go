package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anon-cart/internal/platform/logger"
)

const (
	DefaultKey = "cart-id"
	DefaultTTL = 7 * 24 * time.Hour

	lockTimeout = 5 * time.Second
)

// Manager owns the visitor's cart token. The token is the id of the
// visitor's cart on the server.
type Manager struct {
	storage  Storage
	key      string
	ttl      time.Duration
	newToken func() string
	now      func() time.Time
	log      *logger.Logger

	mu        sync.Mutex
	fallback  string
	refreshed time.Time // last expiry write by this Manager
}

type Option func(*Manager)

func WithKey(key string) Option { return func(m *Manager) { m.key = key } }

func WithTTL(ttl time.Duration) Option { return func(m *Manager) { m.ttl = ttl } }

func NewManager(storage Storage, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		storage:  storage,
		key:      DefaultKey,
		ttl:      DefaultTTL,
		newToken: uuid.NewString,
		now:      time.Now,
		log:      log.With("component", "CartIdentity"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the stored token, creating and persisting one when
// none exists. It never fails: when storage is unavailable the Manager
// falls back to a token held in memory for its own lifetime. Storage that
// implements Locker is held exclusively while the token is read and
// created, so Managers in different processes agree on one token. The
// stored expiry is extended once half of it has elapsed.
func (m *Manager) GetOrCreate(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.storage != nil {
		if unlock := m.lock(ctx); unlock != nil {
			defer unlock()
		}

		token, ok, err := m.storage.Get(m.key)
		switch {
		case err != nil:
			m.log.Warn("identity storage unavailable, using in-memory token", "key", m.key, "error", err)
			return m.fallbackToken()
		case ok && token != "":
			m.refresh(token)
			return token
		}
	}

	// Reuse a token handed out while storage was down so identity stays stable
	token := m.fallback
	if token == "" {
		token = m.newToken()
	}
	if m.storage == nil {
		m.fallback = token
		return token
	}
	if err := m.storage.Set(m.key, token, m.ttl); err != nil {
		m.log.Warn("identity storage unavailable, using in-memory token", "key", m.key, "error", err)
		m.fallback = token
		return token
	}
	m.fallback = ""
	m.refreshed = m.now()
	return token
}

// lock must be called with mu held. It returns nil when the storage is not
// lockable or the lock could not be taken.
func (m *Manager) lock(ctx context.Context) func() {
	l, ok := m.storage.(Locker)
	if !ok {
		return nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	unlock, err := l.Lock(lockCtx)
	if err != nil {
		m.log.Warn("failed to lock identity storage", "key", m.key, "error", err)
		return nil
	}
	return unlock
}

// refresh must be called with mu held.
func (m *Manager) refresh(token string) {
	now := m.now()
	if !m.refreshed.IsZero() && now.Sub(m.refreshed) < m.ttl/2 {
		return
	}
	if err := m.storage.Set(m.key, token, m.ttl); err != nil {
		m.log.Warn("failed to refresh cart token expiry", "key", m.key, "error", err)
		return
	}
	m.refreshed = now
}

// Current returns the token without creating one.
func (m *Manager) Current(ctx context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.storage != nil {
		if token, ok, err := m.storage.Get(m.key); err == nil && ok && token != "" {
			return token, true
		}
	}
	return m.fallback, m.fallback != ""
}

// Clear forgets the token. The next GetOrCreate starts a new cart.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = ""
	m.refreshed = time.Time{}
	if m.storage == nil {
		return nil
	}
	return m.storage.Remove(m.key)
}

// fallbackToken must be called with mu held.
func (m *Manager) fallbackToken() string {
	if m.fallback == "" {
		m.fallback = m.newToken()
	}
	return m.fallback
}
