package oauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OnshapeProviderName is the identifier for the Onshape OAuth provider.
const OnshapeProviderName = "onshape"

// onshapeEndpoint points at Onshape's hosted OAuth2 endpoints.
var onshapeEndpoint = oauth2.Endpoint{
	AuthURL:  "https://oauth.onshape.com/oauth/authorize",
	TokenURL: "https://oauth.onshape.com/oauth/token",
}

// OnshapeProvider implements Provider for Onshape OAuth.
type OnshapeProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOnshapeProvider creates a new Onshape OAuth provider.
// Returns an error if ClientID, ClientSecret, or RedirectURL is empty.
// Scopes are intentionally not defaulted: an Onshape app registered without
// explicit scopes receives the grant configured at registration, and sending
// a scope parameter in that case is rejected by the provider.
func NewOnshapeProvider(cfg OnshapeConfig, opts ...Option) (*OnshapeProvider, error) {
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if cfg.ClientSecret == "" {
		return nil, ErrMissingClientSecret
	}
	if cfg.RedirectURL == "" {
		return nil, ErrMissingRedirectURL
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &OnshapeProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     onshapeEndpoint,
		},
		httpClient: o.httpClient,
	}, nil
}

// Name returns the provider identifier.
func (p *OnshapeProvider) Name() string {
	return OnshapeProviderName
}

// AuthCodeURL generates the authorization URL. With no configured scopes the
// scope parameter is omitted entirely.
func (p *OnshapeProvider) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return p.config.AuthCodeURL(state, opts...)
}

// AuthorizeEndpoint returns Onshape's authorization endpoint URL.
func (p *OnshapeProvider) AuthorizeEndpoint() string {
	return p.config.Endpoint.AuthURL
}

// Exchange trades an authorization code for tokens.
func (p *OnshapeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = p.contextWithHTTPClient(ctx)
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("onshape code exchange: %w", err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a fresh token triple.
func (p *OnshapeProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	ctx = p.contextWithHTTPClient(ctx)
	tok, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("onshape token refresh: %w", err)
	}
	return tok, nil
}

func (p *OnshapeProvider) contextWithHTTPClient(ctx context.Context) context.Context {
	if p.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	return ctx
}
