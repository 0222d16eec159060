package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubVerifier struct {
	accept string
}

func (s *stubVerifier) Verify(token string) (*AuthContext, error) {
	if token != s.accept {
		return nil, errors.New("invalid or expired credential")
	}
	return &AuthContext{
		Token:     token,
		ClientID:  "client_test",
		AccountID: "work",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func echoAccount() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authCtx := FromContext(r.Context()); authCtx != nil {
			w.Write([]byte(authCtx.AccountID))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func TestRequireAuthAcceptsBearerHeader(t *testing.T) {
	handler := RequireAuth(&stubVerifier{accept: "at_good"}).Handler(echoAccount())

	req := httptest.NewRequest("GET", "/tools", nil)
	req.Header.Set("Authorization", "Bearer at_good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "work", rec.Body.String())
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	handler := RequireAuth(&stubVerifier{accept: "at_good"}).Handler(echoAccount())

	req := httptest.NewRequest("GET", "/sse?token=at_good", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	handler := RequireAuth(&stubVerifier{accept: "at_good"}).Handler(echoAccount())

	req := httptest.NewRequest("GET", "/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsBadToken(t *testing.T) {
	handler := RequireAuth(&stubVerifier{accept: "at_good"}).Handler(echoAccount())

	req := httptest.NewRequest("GET", "/tools", nil)
	req.Header.Set("Authorization", "Bearer at_stolen")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthAllowsPreflight(t *testing.T) {
	handler := RequireAuth(&stubVerifier{accept: "at_good"}).Handler(echoAccount())

	req := httptest.NewRequest("OPTIONS", "/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalAuthPassesWithoutToken(t *testing.T) {
	handler := OptionalAuth(&stubVerifier{accept: "at_good"}).Handler(echoAccount())

	req := httptest.NewRequest("GET", "/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}
