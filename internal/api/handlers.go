package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/anon-cart/internal/api/middleware"
	"github.com/example/anon-cart/internal/command"
	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/platform/logger"
	"github.com/example/anon-cart/internal/query"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	log          *logger.Logger
	writeTimeout time.Duration
}

// NewHandlers wires the HTTP surface. Writes run detached from the client
// connection for at most writeTimeout.
func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, log *logger.Logger, writeTimeout time.Duration) *Handlers {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		log:          log.With("component", "API"),
		writeTimeout: writeTimeout,
	}
}

// Cart Handlers

func (h *Handlers) GetLatestCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.queryHandler.LatestCart(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/cart/")
	c, err := h.queryHandler.GetCart(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

func (h *Handlers) CreateCart(w http.ResponseWriter, r *http.Request) {
	input, err := decodeCandidate(r, true)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ctx, cancel := h.detached(r)
	defer cancel()

	c, created, err := h.cmdHandler.CreateCart(ctx, command.CreateCart{
		Input:   input,
		Subject: middleware.GetOwnerID(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondData(w, status, query.NewCartReadModel(c))
}

// Cart Item Handlers

func (h *Handlers) GetCartItems(w http.ResponseWriter, r *http.Request) {
	cartID := extractPathParam(r.URL.Path, "/cart-items/")
	items, err := h.queryHandler.GetCartItems(r.Context(), cartID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, items)
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	input, err := decodeCandidate(r, false)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ctx, cancel := h.detached(r)
	defer cancel()

	item, err := h.cmdHandler.AddItem(ctx, command.AddItem{Input: input})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, item)
}

func (h *Handlers) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	itemID := extractPathParam(r.URL.Path, "/cart-items/")
	input, err := decodeCandidate(r, false)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ctx, cancel := h.detached(r)
	defer cancel()

	item, err := h.cmdHandler.UpdateItemQuantity(ctx, command.UpdateItemQuantity{ItemID: itemID, Input: input})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, item)
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := extractPathParam(r.URL.Path, "/cart-items/")

	ctx, cancel := h.detached(r)
	defer cancel()

	item, err := h.cmdHandler.RemoveItem(ctx, command.RemoveItem{ItemID: itemID})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, item)
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, r, &cart.ValidationError{Fields: []cart.FieldError{
				{Field: "limit", Message: "must be a positive whole number"},
			}})
			return
		}
		limit = n
	}

	products, err := h.queryHandler.ListProducts(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	p, err := h.queryHandler.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, p)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// detached returns a context that survives client disconnects. A write the
// client gave up on still either commits fully or not at all.
func (h *Handlers) detached(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.writeTimeout)
}

// decodeCandidate reads a JSON object body with numbers preserved for the
// validation gate. An empty body is allowed only when optional is set.
func decodeCandidate(r *http.Request, optional bool) (cart.Candidate, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()

	var input cart.Candidate
	if err := dec.Decode(&input); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return cart.Candidate{}, nil
			}
			return nil, badRequest("request body is required")
		}
		return nil, badRequest("request body must be a JSON object")
	}
	if input == nil {
		if optional {
			return cart.Candidate{}, nil
		}
		return nil, badRequest("request body must be a JSON object")
	}
	return input, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, map[string]any{"data": data})
}

func extractPathParam(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}
