package upstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/harborpeak/calbridge-mcp/internal/models"
	"github.com/harborpeak/calbridge-mcp/internal/storage"
)

// ErrNoTokens is returned when an account has never completed authorization.
var ErrNoTokens = errors.New("no stored tokens for account")

// StoredTokens is the durable record for one account's upstream credentials.
type StoredTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Email        string    `json:"email,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

type managerState struct {
	Accounts      map[string]*StoredTokens `json:"accounts"`
	ActiveAccount string                   `json:"active_account,omitempty"`
}

// Manager stores upstream tokens per account, refreshes them on demand, and
// tracks which account is currently active.
type Manager struct {
	mu       sync.Mutex
	state    managerState
	records  storage.RecordStore
	provider *Provider
}

// NewManager loads any previously stored tokens from the record store.
func NewManager(records storage.RecordStore, provider *Provider) (*Manager, error) {
	m := &Manager{
		state:    managerState{Accounts: make(map[string]*StoredTokens)},
		records:  records,
		provider: provider,
	}
	if err := records.Load(&m.state); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if m.state.Accounts == nil {
		m.state.Accounts = make(map[string]*StoredTokens)
	}
	return m, nil
}

// SaveTokens persists a freshly obtained upstream token against an account.
// The account email is pulled from the provider's id_token when present; the
// token was just received over TLS from the provider itself, so its claims
// are read without signature verification.
func (m *Manager) SaveTokens(accountID string, token *oauth2.Token) error {
	rec := &StoredTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		SavedAt:      time.Now(),
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		rec.Email = emailFromIDToken(idToken)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A provider that rotates refresh tokens may omit the new one; keep the
	// old refresh token in that case.
	if rec.RefreshToken == "" {
		if prev, ok := m.state.Accounts[accountID]; ok {
			rec.RefreshToken = prev.RefreshToken
		}
	}

	m.state.Accounts[accountID] = rec
	return m.records.Save(&m.state)
}

// Tokens returns a live upstream token for an account, refreshing through
// the provider when the stored one is expired.
func (m *Manager) Tokens(ctx context.Context, accountID string) (*oauth2.Token, error) {
	m.mu.Lock()
	rec, ok := m.state.Accounts[accountID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTokens, accountID)
	}

	token := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.Expiry,
	}
	if token.Valid() {
		return token, nil
	}

	// Refresh outside the lock; the provider call can be slow.
	fresh, err := m.provider.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := m.SaveTokens(accountID, fresh); err != nil {
		fmt.Printf("Warning: failed to persist refreshed tokens for %s: %v\n", accountID, err)
	}
	return fresh, nil
}

// SetAccountMode marks an account as the active one and persists the choice.
func (m *Manager) SetAccountMode(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ActiveAccount = accountID
	return m.records.Save(&m.state)
}

// GetAccountMode returns the active account id, or "default" before any
// account has authorized.
func (m *Manager) GetAccountMode() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.ActiveAccount == "" {
		return "default"
	}
	return m.state.ActiveAccount
}

// ListAccounts returns every connected account, sorted by id.
func (m *Manager) ListAccounts() []models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]models.Account, 0, len(m.state.Accounts))
	for id, rec := range m.state.Accounts {
		accounts = append(accounts, models.Account{
			ID:     id,
			Email:  rec.Email,
			Active: id == m.state.ActiveAccount,
		})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

// HasTokens reports whether an account ever completed authorization.
func (m *Manager) HasTokens(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.state.Accounts[accountID]
	return ok
}

// RemoveAccount deletes an account's stored tokens. Removing the active
// account resets the mode to default.
func (m *Manager) RemoveAccount(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.state.Accounts, accountID)
	if m.state.ActiveAccount == accountID {
		m.state.ActiveAccount = ""
	}
	return m.records.Save(&m.state)
}

func emailFromIDToken(idToken string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	if email, ok := claims["email"].(string); ok {
		return email
	}
	return ""
}
