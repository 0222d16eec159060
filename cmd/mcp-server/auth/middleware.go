package auth

import (
	"context"
	"net/http"
)

// AuthMiddleware creates HTTP middleware for bearer-token authentication
type AuthMiddleware struct {
	verifier TokenVerifier
	optional bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier TokenVerifier, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Allow OPTIONS requests (CORS preflight) to pass through without auth
		if r.Method == "OPTIONS" {
			next.ServeHTTP(w, r)
			return
		}

		// Try to extract token from header first
		token := ExtractTokenFromHeader(r)

		// If not in header, try query parameter (for SSE)
		if token == "" {
			token = ExtractTokenFromQuery(r)
		}

		if token == "" {
			if !m.optional {
				http.Error(w, "Unauthorized: missing authentication token", http.StatusUnauthorized)
				return
			}
			// Optional auth - continue without auth context
			next.ServeHTTP(w, r)
			return
		}

		authCtx, err := m.verifier.Verify(token)
		if err != nil {
			if !m.optional {
				http.Error(w, "Unauthorized: invalid or expired token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HandlerFunc wraps an HTTP handler function with authentication
func (m *AuthMiddleware) HandlerFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Handler(next).ServeHTTP(w, r)
	}
}

// RequireAuth creates middleware that requires authentication
func RequireAuth(verifier TokenVerifier) *AuthMiddleware {
	return NewAuthMiddleware(verifier, false)
}

// OptionalAuth creates middleware that allows optional authentication
func OptionalAuth(verifier TokenVerifier) *AuthMiddleware {
	return NewAuthMiddleware(verifier, true)
}
