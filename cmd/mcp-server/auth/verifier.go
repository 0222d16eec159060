package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Context keys for storing auth information
type contextKey string

const (
	AuthContextKey contextKey = "auth"
)

// AuthContext carries the verified binding of a broker-issued access token.
type AuthContext struct {
	Token     string
	ClientID  string
	AccountID string
	ExpiresAt time.Time
	Scopes    string
}

// TokenVerifier resolves a bearer token to its binding. The broker's
// verifyAccessToken satisfies this.
type TokenVerifier interface {
	Verify(token string) (*AuthContext, error)
}

// FromContext returns the auth context injected by the middleware, or nil.
func FromContext(ctx context.Context) *AuthContext {
	authCtx, _ := ctx.Value(AuthContextKey).(*AuthContext)
	return authCtx
}

// ExtractTokenFromHeader extracts the bearer token from the Authorization header
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

// ExtractTokenFromQuery extracts the bearer token from a query parameter
func ExtractTokenFromQuery(r *http.Request) string {
	return r.URL.Query().Get("token")
}
