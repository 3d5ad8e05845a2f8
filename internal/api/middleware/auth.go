package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/anon-cart/internal/auth"
)

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	OwnerContextKey     contextKey = "owner"
	RequestIDContextKey contextKey = "request_id"
)

// OptionalAuthMiddleware adds owner claims to context if a valid token is
// present. Requests without one, or with an invalid one, proceed anonymously.
// A nil jwtService disables authentication.
func OptionalAuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if jwtService == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := ExtractToken(r); tokenString != "" {
				if claims, err := jwtService.ValidateToken(tokenString); err == nil {
					ctx := context.WithValue(r.Context(), OwnerContextKey, claims)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves owner claims from the request context
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(OwnerContextKey).(*auth.Claims)
	return claims, ok
}

// GetOwnerID is a helper to get just the owner ID from context
func GetOwnerID(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return ""
	}
	return claims.OwnerID()
}
