package cartsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/domain/product"
)

// APIError is a non-2xx response from the cart API.
type APIError struct {
	Status  int
	Message string
	Fields  []cart.FieldError
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cart api: status %d", e.Status)
	}
	return fmt.Sprintf("cart api: status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the same request may succeed later. 4xx
// responses need the input fixed first.
func (e *APIError) Retryable() bool {
	return e.Status >= 500
}

type CreateCartRequest struct {
	ID      string `json:"id,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`
}

type AddItemRequest struct {
	CartID    string `json:"cartId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Client is a thin HTTP client for the cart API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	bearer     string
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption { return func(cl *Client) { cl.httpClient = c } }

// WithBearerToken authenticates requests as a cart owner.
func WithBearerToken(token string) ClientOption { return func(cl *Client) { cl.bearer = token } }

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestCart returns the most recently updated cart, or nil.
func (c *Client) LatestCart(ctx context.Context) (*cart.Cart, error) {
	var out *cart.Cart
	if _, err := c.do(ctx, http.MethodGet, "/cart", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCart(ctx context.Context, id string) (*cart.Cart, error) {
	var out cart.Cart
	if _, err := c.do(ctx, http.MethodGet, "/cart/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCart reports created=false when the server returned an existing cart.
func (c *Client) CreateCart(ctx context.Context, req CreateCartRequest) (*cart.Cart, bool, error) {
	var out cart.Cart
	status, err := c.do(ctx, http.MethodPost, "/cart", req, &out)
	if err != nil {
		return nil, false, err
	}
	return &out, status == http.StatusCreated, nil
}

func (c *Client) GetCartItems(ctx context.Context, cartID string) ([]cart.CartItem, error) {
	var out []cart.CartItem
	if _, err := c.do(ctx, http.MethodGet, "/cart-items/"+url.PathEscape(cartID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddItem(ctx context.Context, req AddItemRequest) (*cart.CartItem, error) {
	var out cart.CartItem
	if _, err := c.do(ctx, http.MethodPost, "/cart-items", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) (*cart.CartItem, error) {
	var out cart.CartItem
	body := map[string]int{"quantity": quantity}
	if _, err := c.do(ctx, http.MethodPatch, "/cart-items/"+url.PathEscape(itemID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveItem(ctx context.Context, itemID string) (*cart.CartItem, error) {
	var out cart.CartItem
	if _, err := c.do(ctx, http.MethodDelete, "/cart-items/"+url.PathEscape(itemID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProducts(ctx context.Context, limit int) ([]product.Product, error) {
	path := "/products"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []product.Product
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	var out product.Product
	if _, err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends a JSON request and unwraps the {"data": ...} envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error  string            `json:"error"`
			Fields []cart.FieldError `json:"fields"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.Fields = payload.Fields
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(http.StatusText(resp.StatusCode))
		}
		return resp.StatusCode, apiErr
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if len(envelope.Data) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return resp.StatusCode, nil
}
