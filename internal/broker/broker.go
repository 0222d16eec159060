package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// UpstreamAuthenticator is the upstream provider's OAuth client. The broker
// never speaks the provider's wire protocol itself; it only needs a consent
// URL and a code exchange.
type UpstreamAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// TokenManager stores upstream tokens per account and tracks which account
// is currently active.
type TokenManager interface {
	SaveTokens(accountID string, token *oauth2.Token) error
	SetAccountMode(accountID string) error
	GetAccountMode() string
}

// Responder abstracts the user-agent side of a browser flow so the broker
// never touches http.ResponseWriter directly.
type Responder interface {
	Redirect(url string)
	Error(status int, message string)
}

// AuthorizeRequest carries the downstream client's authorization parameters.
type AuthorizeRequest struct {
	CodeChallenge string
	RedirectURI   string
	State         string
}

// Broker is the authorization-server façade. It orchestrates the client
// store, the token/code store, the pending-session correlator, and the
// upstream provider's OAuth client to complete the double-hop flow.
type Broker struct {
	clients  *ClientStore
	tokens   *TokenStore
	pending  *PendingSessionStore
	upstream UpstreamAuthenticator
	manager  TokenManager
}

// New wires a broker from its collaborators.
func New(cfg Config, clients *ClientStore, upstream UpstreamAuthenticator, manager TokenManager) *Broker {
	return &Broker{
		clients:  clients,
		tokens:   NewTokenStore(cfg),
		pending:  NewPendingSessionStore(cfg),
		upstream: upstream,
		manager:  manager,
	}
}

// Stop terminates the background eviction goroutines.
func (b *Broker) Stop() {
	b.tokens.Stop()
	b.pending.Stop()
}

// Clients exposes the registration store to the route layer.
func (b *Broker) Clients() *ClientStore {
	return b.clients
}

// PendingCount reports in-flight authorization attempts.
func (b *Broker) PendingCount() int {
	return b.pending.Count()
}

// Authorize begins the downstream half of the flow: it records a pending
// session and redirects the user-agent to the upstream provider's consent
// URL. Nothing here blocks on network I/O.
func (b *Broker) Authorize(client *RegisteredClient, req AuthorizeRequest, responder Responder) error {
	if req.CodeChallenge == "" {
		return validationError("code_challenge", "required")
	}
	if err := validateRedirectURI(req.RedirectURI); err != nil {
		return err
	}
	if !containsURI(client.RedirectURIs, req.RedirectURI) {
		return validationError("redirect_uri", "not registered for this client")
	}

	sessionID := b.pending.Create(client.ClientID, req.CodeChallenge, req.RedirectURI, req.State)

	state, err := EncodeAuthState(sessionID, b.manager.GetAccountMode())
	if err != nil {
		return err
	}

	responder.Redirect(b.upstream.AuthCodeURL(state))
	return nil
}

// CompleteAuth is the callback half. The pending session is consumed before
// anything else so a replayed callback dies immediately and the upstream
// exchange, the only slow step, runs without any store lock held.
func (b *Broker) CompleteAuth(ctx context.Context, upstreamCode, sessionID, accountID string, responder Responder) {
	sess := b.pending.Consume(sessionID)
	if sess == nil {
		fmt.Printf("OAuth callback error: %v (session %s)\n", ErrSessionExpired, sessionID)
		responder.Error(http.StatusBadRequest, "Authorization session expired or invalid. Please restart the authorization flow.")
		return
	}

	token, err := b.upstream.Exchange(ctx, upstreamCode)
	if err != nil {
		fmt.Printf("OAuth callback error: upstream exchange failed: %v\n", err)
		responder.Error(http.StatusInternalServerError, "Failed to complete authorization with the calendar provider")
		return
	}

	if err := b.manager.SaveTokens(accountID, token); err != nil {
		fmt.Printf("OAuth callback error: failed to save tokens for %s: %v\n", accountID, err)
		responder.Error(http.StatusInternalServerError, "Failed to store calendar credentials")
		return
	}
	if err := b.manager.SetAccountMode(accountID); err != nil {
		fmt.Printf("OAuth callback warning: failed to set account mode: %v\n", err)
	}

	code, err := b.tokens.CreateAuthCode(sess.ClientID, sess.CodeChallenge, sess.RedirectURI, sess.SessionID, accountID)
	if err != nil {
		fmt.Printf("OAuth callback error: failed to mint authorization code: %v\n", err)
		responder.Error(http.StatusInternalServerError, "Failed to complete authorization")
		return
	}

	responder.Redirect(buildRedirect(sess.RedirectURI, code, sess.ClientState))
}

// ExchangeAuthorizationCode verifies the PKCE code_verifier against the
// code's stored challenge and, only then, redeems the code for a token pair.
func (b *Broker) ExchangeAuthorizationCode(client *RegisteredClient, code, codeVerifier string) (*TokenResponse, error) {
	challenge, err := b.tokens.ChallengeForAuthorizationCode(client, code)
	if err != nil {
		return nil, err
	}
	if err := VerifyPKCES256(challenge, codeVerifier); err != nil {
		// The code is burned on a failed verifier so it cannot be retried.
		b.tokens.RevokeCode(code)
		return nil, err
	}
	return b.tokens.ExchangeAuthorizationCode(client, code)
}

// ExchangeRefreshToken mints a new access token from a refresh token.
func (b *Broker) ExchangeRefreshToken(client *RegisteredClient, refreshToken string) (*TokenResponse, error) {
	return b.tokens.ExchangeRefreshToken(client, refreshToken)
}

// VerifyAccessToken resolves a bearer token to its binding.
func (b *Broker) VerifyAccessToken(token string) (*AuthInfo, error) {
	return b.tokens.VerifyAccessToken(token)
}

// RevokeToken revokes a token, cascading from refresh tokens to the access
// tokens they spawned. Always succeeds.
func (b *Broker) RevokeToken(client *RegisteredClient, token, tokenTypeHint string) {
	b.tokens.RevokeToken(client, token, tokenTypeHint)
}

// ChallengeForAuthorizationCode returns a code's stored PKCE challenge
// without consuming it.
func (b *Broker) ChallengeForAuthorizationCode(client *RegisteredClient, code string) (string, error) {
	return b.tokens.ChallengeForAuthorizationCode(client, code)
}

func containsURI(uris []string, uri string) bool {
	for _, u := range uris {
		if u == uri {
			return true
		}
	}
	return false
}

// buildRedirect appends code and state to the client's redirect URI,
// preserving any query parameters already present.
func buildRedirect(base, code, state string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
