package broker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenStore(t *testing.T, cfg Config) *TokenStore {
	t.Helper()
	ts := NewTokenStore(cfg)
	t.Cleanup(ts.Stop)
	return ts
}

func testClient(id string) *RegisteredClient {
	return &RegisteredClient{
		ClientID:     id,
		RedirectURIs: []string{"http://localhost:8123/callback"},
		Scope:        "calendar",
	}
}

func TestCreateAuthCodePrefix(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())

	code, err := ts.CreateAuthCode("client_a", "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, AuthCodePrefix))
}

func TestExchangeAuthorizationCode(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)

	resp, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.AccessToken, AccessTokenPrefix))
	assert.True(t, strings.HasPrefix(resp.RefreshToken, RefreshTokenPrefix))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
}

func TestAuthCodeSingleUse(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)

	_, err = ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)

	// Second redemption must look exactly like a code that never existed.
	_, err = ts.ExchangeAuthorizationCode(client, code)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = ts.ExchangeAuthorizationCode(client, "ac_never-issued")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthCodeClientBinding(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	owner := testClient("client_a")
	thief := testClient("client_b")

	code, err := ts.CreateAuthCode(owner.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)

	_, err = ts.ExchangeAuthorizationCode(thief, code)
	assert.ErrorIs(t, err, ErrClientMismatch)
	assert.NotErrorIs(t, err, ErrInvalidCredential)

	// A mismatch burns the code for the rightful owner too.
	_, err = ts.ExchangeAuthorizationCode(owner, code)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthCodeExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthCodeTTL = 20 * time.Millisecond
	ts := testTokenStore(t, cfg)
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = ts.ExchangeAuthorizationCode(client, code)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExchangeRefreshToken(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)

	refreshed, err := ts.ExchangeRefreshToken(client, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, refreshed.AccessToken)
	assert.Empty(t, refreshed.RefreshToken, "refresh tokens are not rotated")

	// The original access token stays live until its own expiry.
	_, err = ts.VerifyAccessToken(pair.AccessToken)
	assert.NoError(t, err)

	again, err := ts.ExchangeRefreshToken(client, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, refreshed.AccessToken, again.AccessToken)
}

func TestRefreshTokenClientBinding(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	owner := testClient("client_a")
	thief := testClient("client_b")

	code, err := ts.CreateAuthCode(owner.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(owner, code)
	require.NoError(t, err)

	// Wrong client gets the same generic failure as an unknown token.
	_, err = ts.ExchangeRefreshToken(thief, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = ts.ExchangeRefreshToken(owner, "rt_never-issued")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyAccessToken(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)

	info, err := ts.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, info.ClientID)
	assert.Equal(t, "work", info.AccountID)

	_, err = ts.VerifyAccessToken("at_never-issued")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyAccessTokenExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccessTokenTTL = 20 * time.Millisecond
	ts := testTokenStore(t, cfg)
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)

	first, err := ts.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	// Expired, and verification never extended it.
	_, err = ts.VerifyAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.True(t, first.ExpiresAt.Before(time.Now()))
}

func TestRevokeRefreshTokenCascades(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)
	refreshed, err := ts.ExchangeRefreshToken(client, pair.RefreshToken)
	require.NoError(t, err)

	ts.RevokeToken(client, pair.RefreshToken, "refresh_token")

	_, err = ts.VerifyAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = ts.VerifyAccessToken(refreshed.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = ts.ExchangeRefreshToken(client, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestRevokeAccessTokenKeepsRefreshToken(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)

	ts.RevokeToken(client, pair.AccessToken, "access_token")

	_, err = ts.VerifyAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// The refresh token still works.
	_, err = ts.ExchangeRefreshToken(client, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRevokeIsIdempotent(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	ts.RevokeToken(client, "at_never-issued", "access_token")
	ts.RevokeToken(client, "rt_never-issued", "refresh_token")
	ts.RevokeToken(client, "anything", "")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)

	ts.RevokeToken(client, pair.RefreshToken, "refresh_token")
	ts.RevokeToken(client, pair.RefreshToken, "refresh_token")
}

func TestRevokeWithoutHintTriesBothKinds(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(client, code)
	require.NoError(t, err)

	ts.RevokeToken(client, pair.RefreshToken, "")

	_, err = ts.ExchangeRefreshToken(client, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = ts.VerifyAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestRevokeRequiresOwnership(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	owner := testClient("client_a")
	thief := testClient("client_b")

	code, err := ts.CreateAuthCode(owner.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	pair, err := ts.ExchangeAuthorizationCode(owner, code)
	require.NoError(t, err)

	ts.RevokeToken(thief, pair.RefreshToken, "refresh_token")

	// Still live for its owner.
	_, err = ts.ExchangeRefreshToken(owner, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestChallengeForAuthorizationCode(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	owner := testClient("client_a")
	thief := testClient("client_b")

	code, err := ts.CreateAuthCode(owner.ClientID, "the-challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)

	challenge, err := ts.ChallengeForAuthorizationCode(owner, code)
	require.NoError(t, err)
	assert.Equal(t, "the-challenge", challenge)

	_, err = ts.ChallengeForAuthorizationCode(thief, code)
	assert.ErrorIs(t, err, ErrClientMismatch)

	// Lookup does not consume the code.
	_, err = ts.ExchangeAuthorizationCode(owner, code)
	assert.NoError(t, err)

	_, err = ts.ChallengeForAuthorizationCode(owner, "ac_never-issued")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestSweepEvictsExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccessTokenTTL = 10 * time.Millisecond
	cfg.AuthCodeTTL = 10 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	ts := testTokenStore(t, cfg)
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)
	_, err = ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-2", "work")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	ts.mu.Lock()
	codes, access := len(ts.codes), len(ts.access)
	ts.mu.Unlock()
	assert.Zero(t, codes)
	assert.Zero(t, access)

	_, err = ts.ExchangeAuthorizationCode(client, code)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestConcurrentExchangeSingleWinner(t *testing.T) {
	ts := testTokenStore(t, DefaultConfig())
	client := testClient("client_a")

	code, err := ts.CreateAuthCode(client.ClientID, "challenge", "http://localhost:8123/callback", "sess-1", "work")
	require.NoError(t, err)

	const attempts = 16
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := ts.ExchangeAuthorizationCode(client, code)
			results <- err
		}()
	}

	var wins int
	for i := 0; i < attempts; i++ {
		if err := <-results; err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
