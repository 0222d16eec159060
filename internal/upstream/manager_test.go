package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/harborpeak/calbridge-mcp/internal/storage"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	m, err := NewManager(storage.NewFileStore(path), NewProvider(ProviderConfig{
		ClientID: "upstream-client",
		AuthURL:  "https://provider.example.com/auth",
		TokenURL: "https://provider.example.com/token",
	}))
	require.NoError(t, err)
	return m, path
}

func liveToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "upstream-access",
		RefreshToken: "upstream-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestSaveAndGetTokens(t *testing.T) {
	m, _ := testManager(t)

	require.NoError(t, m.SaveTokens("work", liveToken()))
	assert.True(t, m.HasTokens("work"))
	assert.False(t, m.HasTokens("personal"))

	token, err := m.Tokens(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "upstream-access", token.AccessToken)
	assert.Equal(t, "upstream-refresh", token.RefreshToken)
}

func TestTokensUnknownAccount(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Tokens(context.Background(), "never-authorized")
	assert.ErrorIs(t, err, ErrNoTokens)
}

func TestSaveTokensKeepsRefreshTokenWhenOmitted(t *testing.T) {
	m, _ := testManager(t)

	require.NoError(t, m.SaveTokens("work", liveToken()))

	// Providers often omit the refresh token on re-consent.
	require.NoError(t, m.SaveTokens("work", &oauth2.Token{
		AccessToken: "newer-access",
		Expiry:      time.Now().Add(time.Hour),
	}))

	token, err := m.Tokens(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "newer-access", token.AccessToken)
	assert.Equal(t, "upstream-refresh", token.RefreshToken)
}

func TestAccountMode(t *testing.T) {
	m, _ := testManager(t)

	assert.Equal(t, "default", m.GetAccountMode())

	require.NoError(t, m.SetAccountMode("personal"))
	assert.Equal(t, "personal", m.GetAccountMode())
}

func TestTokensSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	provider := NewProvider(ProviderConfig{ClientID: "upstream-client"})

	m, err := NewManager(storage.NewFileStore(path), provider)
	require.NoError(t, err)
	require.NoError(t, m.SaveTokens("work", liveToken()))
	require.NoError(t, m.SetAccountMode("work"))

	reloaded, err := NewManager(storage.NewFileStore(path), provider)
	require.NoError(t, err)
	assert.True(t, reloaded.HasTokens("work"))
	assert.Equal(t, "work", reloaded.GetAccountMode())
}

func TestListAccounts(t *testing.T) {
	m, _ := testManager(t)

	require.NoError(t, m.SaveTokens("work", liveToken()))
	require.NoError(t, m.SaveTokens("personal", liveToken()))
	require.NoError(t, m.SetAccountMode("work"))

	accounts := m.ListAccounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, "personal", accounts[0].ID)
	assert.False(t, accounts[0].Active)
	assert.Equal(t, "work", accounts[1].ID)
	assert.True(t, accounts[1].Active)
}

func TestRemoveAccount(t *testing.T) {
	m, _ := testManager(t)

	require.NoError(t, m.SaveTokens("work", liveToken()))
	require.NoError(t, m.SetAccountMode("work"))

	require.NoError(t, m.RemoveAccount("work"))
	assert.False(t, m.HasTokens("work"))
	assert.Equal(t, "default", m.GetAccountMode())
}

func TestSaveTokensExtractsEmail(t *testing.T) {
	m, _ := testManager(t)

	token := liveToken().WithExtra(map[string]interface{}{
		"id_token": unsignedIDToken(t, map[string]interface{}{"email": "dev@example.com"}),
	})
	require.NoError(t, m.SaveTokens("work", token))

	accounts := m.ListAccounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "dev@example.com", accounts[0].Email)
}

func unsignedIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "."
}
