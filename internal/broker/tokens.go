package broker

import (
	"sync"
	"time"
)

// AuthorizationCode is a broker-issued, single-use code minted when a pending
// session completes. It links the downstream client's PKCE challenge and
// redirect URI to the account chosen during the upstream half of the flow.
type AuthorizationCode struct {
	Code          string
	ClientID      string
	CodeChallenge string
	RedirectURI   string
	SessionID     string
	AccountID     string
	IssuedAt      time.Time
}

// AccessToken is a broker-issued opaque bearer credential. RefreshToken holds
// the refresh token that produced it so cascade revocation can find it.
type AccessToken struct {
	Token        string
	ClientID     string
	AccountID    string
	Scope        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RefreshToken string
}

// RefreshToken is a broker-issued long-lived credential. It never expires on
// its own and lives until explicitly revoked.
type RefreshToken struct {
	Token     string
	ClientID  string
	AccountID string
	Scope     string
	IssuedAt  time.Time
}

// TokenResponse is the wire shape returned by the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthInfo is the result of verifying an access token.
type AuthInfo struct {
	Token     string
	ClientID  string
	AccountID string
	ExpiresAt time.Time
	Scopes    string
}

// TokenStore is the single source of truth for authorization codes, access
// tokens, and refresh tokens. Purely in-memory: expired entries are deleted on
// read and by a background sweep. All mutating lookups happen under one lock
// so "check existence and delete" is a single step and two concurrent
// redemptions of the same code can never both succeed.
type TokenStore struct {
	mu      sync.Mutex
	codes   map[string]*AuthorizationCode
	access  map[string]*AccessToken
	refresh map[string]*RefreshToken

	accessTTL time.Duration
	codeTTL   time.Duration

	sweepInterval time.Duration
	stopSweep     chan struct{}
}

// NewTokenStore creates a token store and starts its eviction goroutine.
func NewTokenStore(cfg Config) *TokenStore {
	cfg = cfg.withDefaults()
	ts := &TokenStore{
		codes:         make(map[string]*AuthorizationCode),
		access:        make(map[string]*AccessToken),
		refresh:       make(map[string]*RefreshToken),
		accessTTL:     cfg.AccessTokenTTL,
		codeTTL:       cfg.AuthCodeTTL,
		sweepInterval: cfg.SweepInterval,
		stopSweep:     make(chan struct{}),
	}
	go ts.sweepLoop()
	return ts
}

// Stop terminates the eviction goroutine.
func (ts *TokenStore) Stop() {
	close(ts.stopSweep)
}

// CreateAuthCode mints an authorization code bound to the given client, PKCE
// challenge, redirect URI, and session/account pair. The client is recorded,
// not validated; binding is enforced at exchange time.
func (ts *TokenStore) CreateAuthCode(clientID, codeChallenge, redirectURI, sessionID, accountID string) (string, error) {
	code, err := newToken(AuthCodePrefix, 32)
	if err != nil {
		return "", err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.codes[code] = &AuthorizationCode{
		Code:          code,
		ClientID:      clientID,
		CodeChallenge: codeChallenge,
		RedirectURI:   redirectURI,
		SessionID:     sessionID,
		AccountID:     accountID,
		IssuedAt:      time.Now(),
	}
	return code, nil
}

// ExchangeAuthorizationCode redeems a code for a fresh access/refresh token
// pair. The code is deleted whether or not the exchange succeeds, so a second
// attempt fails exactly like a code that never existed.
func (ts *TokenStore) ExchangeAuthorizationCode(client *RegisteredClient, code string) (*TokenResponse, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := ts.codes[code]
	if !ok || time.Since(rec.IssuedAt) > ts.codeTTL {
		delete(ts.codes, code)
		return nil, ErrInvalidCredential
	}

	// Single use: gone from here on, even when validation below fails, so a
	// failed attempt cannot be used to probe the code's validity.
	delete(ts.codes, code)

	if rec.ClientID != client.ClientID {
		return nil, ErrClientMismatch
	}

	return ts.mintTokenPair(client.ClientID, rec.AccountID, client.Scope)
}

// ExchangeRefreshToken mints a new access token for a live refresh token. The
// refresh token is not rotated; the new access token always differs from every
// prior issuance.
func (ts *TokenStore) ExchangeRefreshToken(client *RegisteredClient, token string) (*TokenResponse, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := ts.refresh[token]
	if !ok || rec.ClientID != client.ClientID {
		return nil, ErrInvalidCredential
	}

	access, err := ts.mintAccessToken(rec.ClientID, rec.AccountID, rec.Scope, rec.Token)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ts.accessTTL.Seconds()),
		Scope:       rec.Scope,
	}, nil
}

// VerifyAccessToken reports the binding of a live access token. Expired
// entries are deleted on the way out; verification never extends a token.
func (ts *TokenStore) VerifyAccessToken(token string) (*AuthInfo, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := ts.access[token]
	if !ok {
		return nil, ErrInvalidCredential
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(ts.access, token)
		return nil, ErrInvalidCredential
	}

	return &AuthInfo{
		Token:     rec.Token,
		ClientID:  rec.ClientID,
		AccountID: rec.AccountID,
		ExpiresAt: rec.ExpiresAt,
		Scopes:    rec.Scope,
	}, nil
}

// RevokeToken revokes a credential owned by the client. Revoking a refresh
// token deletes it and every access token it spawned; revoking an access
// token never touches its refresh token. Unknown or already-revoked tokens
// are a no-op per RFC 7009.
func (ts *TokenStore) RevokeToken(client *RegisteredClient, token, tokenTypeHint string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	switch tokenTypeHint {
	case "access_token":
		ts.revokeAccess(client.ClientID, token)
	case "refresh_token":
		ts.revokeRefresh(client.ClientID, token)
	default:
		// Hint is optional per RFC 7009; try both kinds.
		ts.revokeAccess(client.ClientID, token)
		ts.revokeRefresh(client.ClientID, token)
	}
}

func (ts *TokenStore) revokeAccess(clientID, token string) {
	if rec, ok := ts.access[token]; ok && rec.ClientID == clientID {
		delete(ts.access, token)
	}
}

func (ts *TokenStore) revokeRefresh(clientID, token string) {
	rec, ok := ts.refresh[token]
	if !ok || rec.ClientID != clientID {
		return
	}
	delete(ts.refresh, token)
	for t, at := range ts.access {
		if at.RefreshToken == token {
			delete(ts.access, t)
		}
	}
}

// RevokeCode deletes an authorization code unconditionally. Used to burn a
// code whose PKCE verification failed.
func (ts *TokenStore) RevokeCode(code string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.codes, code)
}

// ChallengeForAuthorizationCode returns the PKCE challenge stored with a code
// so the caller can verify the code_verifier before permitting an exchange.
// The code is not consumed.
func (ts *TokenStore) ChallengeForAuthorizationCode(client *RegisteredClient, code string) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := ts.codes[code]
	if !ok || time.Since(rec.IssuedAt) > ts.codeTTL {
		delete(ts.codes, code)
		return "", ErrInvalidCredential
	}
	if rec.ClientID != client.ClientID {
		return "", ErrClientMismatch
	}
	return rec.CodeChallenge, nil
}

// mintTokenPair creates a refresh token and its first access token. Caller
// holds ts.mu.
func (ts *TokenStore) mintTokenPair(clientID, accountID, scope string) (*TokenResponse, error) {
	refresh, err := newToken(RefreshTokenPrefix, 48)
	if err != nil {
		return nil, err
	}
	ts.refresh[refresh] = &RefreshToken{
		Token:     refresh,
		ClientID:  clientID,
		AccountID: accountID,
		Scope:     scope,
		IssuedAt:  time.Now(),
	}

	access, err := ts.mintAccessToken(clientID, accountID, scope, refresh)
	if err != nil {
		delete(ts.refresh, refresh)
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  access.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(ts.accessTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        scope,
	}, nil
}

// mintAccessToken creates one access token linked to refreshToken for cascade
// bookkeeping. Caller holds ts.mu.
func (ts *TokenStore) mintAccessToken(clientID, accountID, scope, refreshToken string) (*AccessToken, error) {
	token, err := newToken(AccessTokenPrefix, 32)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	rec := &AccessToken{
		Token:        token,
		ClientID:     clientID,
		AccountID:    accountID,
		Scope:        scope,
		IssuedAt:     now,
		ExpiresAt:    now.Add(ts.accessTTL),
		RefreshToken: refreshToken,
	}
	ts.access[token] = rec
	return rec, nil
}

func (ts *TokenStore) sweepLoop() {
	ticker := time.NewTicker(ts.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ts.stopSweep:
			return
		case <-ticker.C:
			ts.sweep()
		}
	}
}

// sweep evicts expired codes and access tokens. Refresh tokens have no TTL.
func (ts *TokenStore) sweep() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for code, rec := range ts.codes {
		if now.Sub(rec.IssuedAt) > ts.codeTTL {
			delete(ts.codes, code)
		}
	}
	for token, rec := range ts.access {
		if now.After(rec.ExpiresAt) {
			delete(ts.access, token)
		}
	}
}
