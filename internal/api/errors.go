package api

import (
	"errors"
	"net/http"

	"github.com/example/anon-cart/internal/api/middleware"
	"github.com/example/anon-cart/internal/domain/cart"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields []cart.FieldError `json:"fields,omitempty"`
}

// requestError is a malformed request that never reached the gate.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

// respondError maps every failure kind to a status in one place. Anything
// unrecognized is logged and reported as an opaque 500.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *cart.ValidationError
		rerr *requestError
	)
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.As(err, &rerr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: rerr.Error()})
	case errors.Is(err, cart.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, cart.ErrOwnerMismatch):
		respondJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		h.log.Error("request failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
