package api

import (
	"net/http"

	"github.com/example/anon-cart/internal/api/middleware"
	"github.com/example/anon-cart/internal/auth"
	"github.com/example/anon-cart/internal/platform/logger"
)

type RouterConfig struct {
	// JWTService enables optional owner authentication when set
	JWTService *auth.JWTService
	Log        *logger.Logger
}

func NewRouter(handlers *Handlers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			handlers.Health(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Products
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/products/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProduct(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Cart
	mux.HandleFunc("/cart", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetLatestCart(w, r)
		case http.MethodPost:
			handlers.CreateCart(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/cart/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetCart(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Cart items
	mux.HandleFunc("/cart-items", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.AddItem(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/cart-items/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetCartItems(w, r)
		case http.MethodPatch:
			handlers.UpdateItemQuantity(w, r)
		case http.MethodDelete:
			handlers.RemoveItem(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.AccessLog(log),
		middleware.Recover(log),
		middleware.OptionalAuthMiddleware(cfg.JWTService),
	)
}

func methodNotAllowed(w http.ResponseWriter) {
	respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}
