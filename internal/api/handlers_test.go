package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/anon-cart/internal/auth"
	"github.com/example/anon-cart/internal/command"
	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/domain/product"
	"github.com/example/anon-cart/internal/infrastructure/cache"
	"github.com/example/anon-cart/internal/infrastructure/store"
	"github.com/example/anon-cart/internal/infrastructure/store/mocks"
	"github.com/example/anon-cart/internal/platform/logger"
	"github.com/example/anon-cart/internal/query"
)

const testSecret = "test-secret-key-for-testing-purposes"

type testServer struct {
	handler  http.Handler
	repo     *mocks.MockCartRepository
	catalog  *store.MemoryCatalog
	jwt      *auth.JWTService
	products []product.Product
}

func newTestServer() *testServer {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []product.Product{
		{ID: uuid.NewString(), Name: "Luminous Silk Foundation", Price: 6499, CreatedAt: base},
		{ID: uuid.NewString(), Name: "Hyaluronic Acid Serum", Price: 3899, CreatedAt: base.Add(time.Second)},
		{ID: uuid.NewString(), Name: "Velvet Matte Lipstick", Price: 2499, CreatedAt: base.Add(2 * time.Second)},
	}
	catalog := store.NewMemoryCatalog(products...)
	repo := mocks.NewMockCartRepository(store.NewMemoryCartStore(catalog))
	c := cache.NewMemoryCache()
	log := logger.Nop()

	cmd := command.NewHandler(repo, nil, c, log)
	qry := query.NewHandler(repo, catalog, c, time.Minute, log)
	jwtService := auth.NewJWTService(testSecret, "anon-cart", time.Hour)

	return &testServer{
		handler:  NewRouter(NewHandlers(cmd, qry, log, 5*time.Second), RouterConfig{JWTService: jwtService, Log: log}),
		repo:     repo,
		catalog:  catalog,
		jwt:      jwtService,
		products: products,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope[T any] struct {
	Data  T                 `json:"data"`
	Error string            `json:"error"`
	Field []cart.FieldError `json:"fields"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func (s *testServer) createCart(t *testing.T) query.CartReadModel {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/cart", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[query.CartReadModel](t, rec).Data
}

// ============================================
// Cart Handler Tests
// ============================================

func TestGetLatestCart_NoCarts(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/cart", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null}`, rec.Body.String())
}

func TestGetCart_MissingID(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/cart/", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode[any](t, rec)
	require.Len(t, env.Field, 1)
	assert.Equal(t, "id", env.Field[0].Field)
	assert.Equal(t, 0, s.repo.CallCount("GetCart"))
}

func TestGetCart_MalformedID(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/cart/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCart_NotFound(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/cart/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[any](t, rec).Error, "not found")
}

func TestCreateCart_Anonymous_Distinct(t *testing.T) {
	s := newTestServer()

	first := s.createCart(t)
	second := s.createCart(t)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Nil(t, first.OwnerID)
	assert.NotNil(t, first.Items)
}

func TestCreateCart_ClientToken_Idempotent(t *testing.T) {
	s := newTestServer()
	token := uuid.NewString()

	rec := s.do(t, http.MethodPost, "/cart", map[string]any{"id": token})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/cart", map[string]any{"id": token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, token, decode[query.CartReadModel](t, rec).Data.ID)
}

func TestCreateCart_SameOwner_Idempotent(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/cart", map[string]any{"ownerId": "visitor-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[query.CartReadModel](t, rec).Data

	rec = s.do(t, http.MethodPost, "/cart", map[string]any{"ownerId": "visitor-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[query.CartReadModel](t, rec).Data

	assert.Equal(t, first.ID, second.ID)
}

func TestCreateCart_TokenSubjectBecomesOwner(t *testing.T) {
	s := newTestServer()
	token, _, err := s.jwt.GenerateToken("user-42", "")
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/cart", nil, "Authorization", "Bearer "+token)

	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[query.CartReadModel](t, rec).Data
	require.NotNil(t, c.OwnerID)
	assert.Equal(t, "user-42", *c.OwnerID)
}

func TestCreateCart_OwnerDiffersFromToken(t *testing.T) {
	s := newTestServer()
	token, _, err := s.jwt.GenerateToken("user-42", "")
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/cart", map[string]any{"ownerId": "user-43"}, "Authorization", "Bearer "+token)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateCart_InvalidBody(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{oops"},
		{"array", "[1,2]"},
		{"bad id", `{"id":"nope"}`},
		{"empty owner", `{"ownerId":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/cart", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCart_MethodNotAllowed(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPut, "/cart", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ============================================
// Cart Item Handler Tests
// ============================================

func TestAddItem_ValidationNamesFields(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)

	rec := s.do(t, http.MethodPost, "/cart-items", map[string]any{
		"cartId":    c.ID,
		"productId": "bogus",
		"quantity":  100,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode[any](t, rec)
	fields := make([]string, 0, len(env.Field))
	for _, f := range env.Field {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"productId", "quantity"}, fields)
	assert.Equal(t, 0, s.repo.CallCount("AddItem"))
}

func TestAddItem_QuantityBounds(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)

	tests := []struct {
		quantity string
		want     int
	}{
		{"0", http.StatusBadRequest},
		{"100", http.StatusBadRequest},
		{"2.5", http.StatusBadRequest},
		{`"3"`, http.StatusOK},
		{"1", http.StatusOK},
		{"99", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.quantity, func(t *testing.T) {
			body := `{"cartId":"` + c.ID + `","productId":"` + s.products[0].ID + `","quantity":` + tt.quantity + `}`
			rec := s.do(t, http.MethodPost, "/cart-items", body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAddItem_EmptyBody(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/cart-items", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddItem_UnknownCartOrProduct(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)

	rec := s.do(t, http.MethodPost, "/cart-items", map[string]any{
		"cartId": uuid.NewString(), "productId": s.products[0].ID, "quantity": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/cart-items", map[string]any{
		"cartId": c.ID, "productId": uuid.NewString(), "quantity": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddItem_PersistenceFailureIsOpaque(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)
	s.repo.AddItemErr = cart.Persistence("add item", errors.New("pq: connection reset by peer"))

	rec := s.do(t, http.MethodPost, "/cart-items", map[string]any{
		"cartId": c.ID, "productId": s.products[0].ID, "quantity": 1,
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestAddItem_PriceSnapshot(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)

	rec := s.do(t, http.MethodPost, "/cart-items", map[string]any{
		"cartId": c.ID, "productId": s.products[1].ID, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	added := decode[cart.CartItem](t, rec).Data

	require.True(t, s.catalog.SetPrice(s.products[1].ID, 1))

	rec = s.do(t, http.MethodGet, "/cart-items/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]cart.CartItem](t, rec).Data
	require.Len(t, items, 1)
	assert.Equal(t, added.ID, items[0].ID)
	assert.Equal(t, int64(3899), items[0].Price)
}

func TestAddItem_ConcurrentDifferentProducts(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{"cartId": c.ID, "productId": s.products[i].ID, "quantity": 1})
			req := httptest.NewRequest(http.MethodPost, "/cart-items", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
	rec := s.do(t, http.MethodGet, "/cart-items/"+c.ID, nil)
	items := decode[[]cart.CartItem](t, rec).Data
	assert.Len(t, items, 2)
}

func TestGetCartItems_Errors(t *testing.T) {
	s := newTestServer()

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/cart-items/", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/cart-items/"+uuid.NewString(), nil).Code)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)
	rec := s.do(t, http.MethodPost, "/cart-items", map[string]any{
		"cartId": c.ID, "productId": s.products[0].ID, "quantity": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[cart.CartItem](t, rec).Data

	rec = s.do(t, http.MethodPatch, "/cart-items/"+item.ID, map[string]any{"quantity": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[cart.CartItem](t, rec).Data.Quantity)

	rec = s.do(t, http.MethodPatch, "/cart-items/"+item.ID, map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/cart-items/"+item.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, item.ID, decode[cart.CartItem](t, rec).Data.ID)

	rec = s.do(t, http.MethodDelete, "/cart-items/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/cart/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[query.CartReadModel](t, rec).Data.Items)
}

// ============================================
// Product Handler Tests
// ============================================

func TestGetProducts(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/products?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]product.Product](t, rec).Data, 2)

	rec = s.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]product.Product](t, rec).Data, 3)

	rec = s.do(t, http.MethodGet, "/products?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProduct(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/products/"+s.products[2].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Velvet Matte Lipstick", decode[product.Product](t, rec).Data.Name)

	rec = s.do(t, http.MethodGet, "/products/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

// ============================================
// End-to-end
// ============================================

func TestFreshVisitorScenario(t *testing.T) {
	s := newTestServer()
	token := uuid.NewString()

	rec := s.do(t, http.MethodPost, "/cart", map[string]any{"id": token})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/cart-items", map[string]any{
		"cartId": token, "productId": s.products[0].ID, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/cart-items/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]cart.CartItem](t, rec).Data
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(6499), items[0].Price)

	// A reload re-announces the same token and gets the same cart back
	rec = s.do(t, http.MethodPost, "/cart", map[string]any{"id": token})
	require.Equal(t, http.StatusOK, rec.Code)
	reloaded := decode[query.CartReadModel](t, rec).Data
	assert.Equal(t, token, reloaded.ID)

	rec = s.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[query.CartReadModel](t, rec).Data
	assert.Equal(t, token, latest.ID)
	assert.Equal(t, int64(2*6499), latest.TotalPrice)
}

func TestWriteSurvivesClientCancel(t *testing.T) {
	s := newTestServer()
	c := s.createCart(t)

	body, _ := json.Marshal(map[string]any{"cartId": c.ID, "productId": s.products[0].ID, "quantity": 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/cart-items", bytes.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]cart.CartItem](t, s.do(t, http.MethodGet, "/cart-items/"+c.ID, nil)).Data
	assert.Len(t, items, 1)
}
