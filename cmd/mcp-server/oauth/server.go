package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harborpeak/calbridge-mcp/internal/broker"
)

// Server exposes the broker's OAuth 2.1 endpoints over HTTP. All request
// parsing and status-code mapping lives here; the broker itself never sees
// an http.Request.
type Server struct {
	issuer string
	broker *broker.Broker
}

// NewServer creates the OAuth route layer.
func NewServer(issuer string, b *broker.Broker) *Server {
	return &Server{
		issuer: strings.TrimSuffix(issuer, "/"),
		broker: b,
	}
}

// Routes registers the OAuth endpoints on a mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.HandleWellKnown)
	mux.HandleFunc("/oauth/register", s.HandleRegister)
	mux.HandleFunc("/oauth/authorize", s.HandleAuthorize)
	mux.HandleFunc("/oauth/callback", s.HandleCallback)
	mux.HandleFunc("/oauth/token", s.HandleToken)
	mux.HandleFunc("/oauth/revoke", s.HandleRevoke)

	// Unprefixed aliases for clients that assume endpoints at the issuer root.
	mux.HandleFunc("/register", s.HandleRegister)
	mux.HandleFunc("/authorize", s.HandleAuthorize)
	mux.HandleFunc("/token", s.HandleToken)
	mux.HandleFunc("/revoke", s.HandleRevoke)
}

// httpResponder adapts an http.ResponseWriter to the broker's Responder.
type httpResponder struct {
	w http.ResponseWriter
	r *http.Request
}

func (h *httpResponder) Redirect(url string) {
	http.Redirect(h.w, h.r, url, http.StatusFound)
}

func (h *httpResponder) Error(status int, message string) {
	http.Error(h.w, message, status)
}

// HandleWellKnown serves OAuth discovery metadata.
func (s *Server) HandleWellKnown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := map[string]interface{}{
		"issuer":                                s.issuer,
		"authorization_endpoint":                s.issuer + "/oauth/authorize",
		"token_endpoint":                        s.issuer + "/oauth/token",
		"registration_endpoint":                 s.issuer + "/oauth/register",
		"revocation_endpoint":                   s.issuer + "/oauth/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_post"},
	}

	writeJSON(w, http.StatusOK, data)
}

// HandleRegister registers dynamic clients.
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RedirectURIs            []string `json:"redirect_uris"`
		GrantTypes              []string `json:"grant_types"`
		ResponseTypes           []string `json:"response_types"`
		Scope                   string   `json:"scope"`
		TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
		ClientName              string   `json:"client_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		fmt.Printf("OAuth register error: invalid JSON payload: %v\n", err)
		return
	}

	client, secret, err := s.broker.Clients().Register(broker.ClientRegistration{
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		ClientName:              req.ClientName,
	})
	if err != nil {
		if broker.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			http.Error(w, "Failed to register client", http.StatusInternalServerError)
		}
		fmt.Printf("OAuth register error: %v\n", err)
		return
	}

	resp := map[string]interface{}{
		"client_id":                  client.ClientID,
		"client_id_issued_at":        client.CreatedAt.Unix(),
		"client_secret_expires_at":   0,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"response_types":             client.ResponseTypes,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
		"client_name":                client.ClientName,
		"scope":                      client.Scope,
	}
	if secret != "" {
		resp["client_secret"] = secret
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleAuthorize starts the double-hop flow by redirecting the user-agent
// to the upstream provider's consent page.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	if rt := query.Get("response_type"); rt != "code" {
		http.Error(w, "Unsupported response_type", http.StatusBadRequest)
		return
	}

	clientID := query.Get("client_id")
	if clientID == "" {
		http.Error(w, "client_id required", http.StatusBadRequest)
		return
	}
	client, err := s.broker.Clients().Get(clientID)
	if err != nil {
		http.Error(w, "Invalid client_id", http.StatusBadRequest)
		fmt.Printf("OAuth authorize error: unknown client %s\n", clientID)
		return
	}

	if method := query.Get("code_challenge_method"); method != "" && strings.ToUpper(method) != "S256" {
		http.Error(w, "PKCE S256 is required", http.StatusBadRequest)
		return
	}

	err = s.broker.Authorize(client, broker.AuthorizeRequest{
		CodeChallenge: query.Get("code_challenge"),
		RedirectURI:   query.Get("redirect_uri"),
		State:         query.Get("state"),
	}, &httpResponder{w: w, r: r})
	if err != nil {
		status := http.StatusInternalServerError
		if broker.IsValidation(err) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		fmt.Printf("OAuth authorize error: %v\n", err)
	}
}

// HandleCallback is the upstream provider's redirect target. State values
// the broker did not mint are rejected outright; the upstream state channel
// is shared and a foreign value here means CSRF or a misrouted redirect.
func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		http.Error(w, "Authorization was denied by the calendar provider", http.StatusBadRequest)
		fmt.Printf("OAuth callback error: provider returned error=%s\n", errParam)
		return
	}

	env := broker.ParseAuthState(query.Get("state"))
	if env == nil {
		http.Error(w, "Invalid state parameter", http.StatusForbidden)
		fmt.Printf("OAuth callback error: state integrity check failed\n")
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}

	s.broker.CompleteAuth(r.Context(), code, env.SessionID, env.AccountID, &httpResponder{w: w, r: r})
}

// HandleToken exchanges authorization codes or refresh tokens.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		fmt.Printf("OAuth token error: method not allowed (%s)\n", r.Method)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		fmt.Printf("OAuth token error: invalid form body: %v\n", err)
		return
	}

	grantType := r.FormValue("grant_type")
	switch grantType {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		http.Error(w, "Unsupported grant_type", http.StatusBadRequest)
		fmt.Printf("OAuth token error: unsupported grant_type=%s\n", grantType)
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		fmt.Printf("OAuth token error: missing code\n")
		return
	}

	client, err := s.authenticateClient(r)
	if err != nil {
		http.Error(w, "Invalid client credentials", http.StatusUnauthorized)
		fmt.Printf("OAuth token error: client auth failed: %v\n", err)
		return
	}

	resp, err := s.broker.ExchangeAuthorizationCode(client, code, r.FormValue("code_verifier"))
	if err != nil {
		s.writeTokenError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		http.Error(w, "Missing refresh_token", http.StatusBadRequest)
		fmt.Printf("OAuth token error: missing refresh_token\n")
		return
	}

	client, err := s.authenticateClient(r)
	if err != nil {
		http.Error(w, "Invalid client credentials", http.StatusUnauthorized)
		fmt.Printf("OAuth token error: client auth failed: %v\n", err)
		return
	}

	resp, err := s.broker.ExchangeRefreshToken(client, refreshToken)
	if err != nil {
		s.writeTokenError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleRevoke revokes access or refresh tokens. Per RFC 7009 an unknown
// token still yields 200.
func (s *Server) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	client, err := s.authenticateClient(r)
	if err != nil {
		http.Error(w, "Invalid client credentials", http.StatusUnauthorized)
		fmt.Printf("OAuth revoke error: client auth failed: %v\n", err)
		return
	}

	s.broker.RevokeToken(client, r.FormValue("token"), r.FormValue("token_type_hint"))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authenticateClient(r *http.Request) (*broker.RegisteredClient, error) {
	clientID := r.FormValue("client_id")
	if clientID == "" {
		return nil, fmt.Errorf("client_id required")
	}
	return s.broker.Clients().Authenticate(clientID, r.FormValue("client_secret"))
}

func (s *Server) writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case broker.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, broker.ErrClientMismatch):
		http.Error(w, "Client mismatch", http.StatusBadRequest)
	case errors.Is(err, broker.ErrInvalidCredential):
		http.Error(w, "Invalid or expired credential", http.StatusBadRequest)
	default:
		http.Error(w, "Failed to issue tokens", http.StatusInternalServerError)
	}
	fmt.Printf("OAuth token error: %v\n", err)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
