package upstream

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Provider wraps the upstream calendar provider's OAuth client. It is the
// only piece of the server that speaks the provider's token wire protocol.
type Provider struct {
	config *oauth2.Config
	apiURL string
}

// ProviderConfig holds the upstream OAuth application settings.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	APIURL       string
	Scopes       []string
}

// NewProvider creates the upstream OAuth client.
func NewProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		apiURL: cfg.APIURL,
	}
}

// AuthCodeURL builds the provider's consent URL. Offline access is always
// requested so the provider issues a refresh token.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange redeems the provider's authorization code for a token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("upstream code exchange failed: %w", err)
	}
	return token, nil
}

// Refresh obtains a fresh token from a stored one. The returned token may
// carry a rotated refresh token; callers must persist it.
func (p *Provider) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := p.config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("upstream token refresh failed: %w", err)
	}
	return fresh, nil
}

// APIURL returns the provider's REST API base.
func (p *Provider) APIURL() string {
	return p.apiURL
}
