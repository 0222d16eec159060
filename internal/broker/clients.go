package broker

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/harborpeak/calbridge-mcp/internal/storage"
)

// RegisteredClient is a downstream client created by dynamic registration.
// Immutable after creation. JSON tags define the durable record format.
type RegisteredClient struct {
	ClientID                string    `json:"client_id"`
	ClientSecretHash        string    `json:"client_secret_hash,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types,omitempty"`
	ResponseTypes           []string  `json:"response_types,omitempty"`
	Scope                   string    `json:"scope,omitempty"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	ClientName              string    `json:"client_name,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

// ClientRegistration is the input to Register.
type ClientRegistration struct {
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	TokenEndpointAuthMethod string
	ClientName              string
}

// dummySecretHash is compared against when authenticating an unknown client
// so the response time does not reveal whether the client_id exists. It is a
// bcrypt hash of a random string, never matched by any real secret.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ClientStore holds registered downstream clients, persisting every change so
// registrations survive restarts while all token state does not.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]*RegisteredClient
	records storage.RecordStore
}

// NewClientStore loads previously registered clients from the record store.
// An empty store is not an error.
func NewClientStore(records storage.RecordStore) (*ClientStore, error) {
	cs := &ClientStore{
		clients: make(map[string]*RegisteredClient),
		records: records,
	}
	if err := records.Load(&cs.clients); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if cs.clients == nil {
		cs.clients = make(map[string]*RegisteredClient)
	}
	return cs, nil
}

// Register creates a new client, persists it, and returns the record together
// with the plaintext secret for confidential clients. The secret is never
// stored or recoverable afterwards.
func (cs *ClientStore) Register(req ClientRegistration) (*RegisteredClient, string, error) {
	if len(req.RedirectURIs) == 0 {
		return nil, "", validationError("redirect_uris", "required")
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, "", err
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "client_secret_post"
	}

	clientID, err := newToken(ClientIDPrefix, 16)
	if err != nil {
		return nil, "", err
	}

	var secret, secretHash string
	if authMethod != "none" {
		secret, err = newToken(ClientSecretPrefix, 32)
		if err != nil {
			return nil, "", err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", err
		}
		secretHash = string(hash)
	}

	client := &RegisteredClient{
		ClientID:                clientID,
		ClientSecretHash:        secretHash,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: authMethod,
		ClientName:              req.ClientName,
		CreatedAt:               time.Now(),
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.clients[clientID] = client
	if err := cs.records.Save(cs.clients); err != nil {
		delete(cs.clients, clientID)
		return nil, "", err
	}
	return client, secret, nil
}

// Get looks up a client by id.
func (cs *ClientStore) Get(clientID string) (*RegisteredClient, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	client, ok := cs.clients[clientID]
	if !ok {
		return nil, ErrInvalidCredential
	}
	return client, nil
}

// Authenticate verifies a client's credentials. Public clients present no
// secret; confidential clients must present the one issued at registration.
// Unknown ids and wrong secrets fail identically.
func (cs *ClientStore) Authenticate(clientID, secret string) (*RegisteredClient, error) {
	cs.mu.RLock()
	client, ok := cs.clients[clientID]
	cs.mu.RUnlock()

	if !ok {
		// Burn a comparison anyway so the timing matches the known-client path.
		bcrypt.CompareHashAndPassword([]byte(dummySecretHash), []byte(secret))
		return nil, ErrInvalidCredential
	}

	if client.TokenEndpointAuthMethod == "none" {
		return client, nil
	}
	if secret == "" {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredential
	}
	return client, nil
}

// Count returns the number of registered clients, for status reporting.
func (cs *ClientStore) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.clients)
}

// validateRedirectURI accepts absolute https URIs, plus plain http only for
// loopback hosts.
func validateRedirectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return validationError("redirect_uri", "must be an absolute URI")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost") {
			return nil
		}
		return validationError("redirect_uri", "http is only allowed for localhost")
	default:
		return validationError("redirect_uri", "unsupported scheme")
	}
}
