package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	// AtlassianProviderName is the identifier for the Atlassian OAuth provider.
	AtlassianProviderName = "atlassian"

	atlassianResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"
)

// atlassianEndpoint points at Atlassian's hosted OAuth2 (3LO) endpoints.
var atlassianEndpoint = oauth2.Endpoint{
	AuthURL:  "https://auth.atlassian.com/authorize",
	TokenURL: "https://auth.atlassian.com/oauth/token",
}

// AtlassianDefaultScopes returns the default scopes for Atlassian OAuth.
// offline_access is required or the token response carries no refresh token.
func AtlassianDefaultScopes() []string {
	return []string{"read:jira-work", "write:jira-work", "offline_access"}
}

// AtlassianProvider implements Provider for Atlassian OAuth (3LO).
// It also implements AccountResolver: Atlassian's REST API is addressed as
// api.atlassian.com/ex/jira/{cloudID}/..., so the cloud ID granted to the
// token must be resolved once after the code exchange.
type AtlassianProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewAtlassianProvider creates a new Atlassian OAuth provider.
// Returns an error if ClientID, ClientSecret, or RedirectURL is empty.
func NewAtlassianProvider(cfg AtlassianConfig, opts ...Option) (*AtlassianProvider, error) {
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

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = AtlassianDefaultScopes()
	}

	return &AtlassianProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     atlassianEndpoint,
		},
		httpClient: o.httpClient,
	}, nil
}

// Name returns the provider identifier.
func (p *AtlassianProvider) Name() string {
	return AtlassianProviderName
}

// AuthCodeURL generates the authorization URL. Atlassian requires the
// audience and prompt parameters on every authorization request.
func (p *AtlassianProvider) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	params := append([]oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	}, opts...)
	return p.config.AuthCodeURL(state, params...)
}

// AuthorizeEndpoint returns Atlassian's authorization endpoint URL.
func (p *AtlassianProvider) AuthorizeEndpoint() string {
	return p.config.Endpoint.AuthURL
}

// Exchange trades an authorization code for tokens.
func (p *AtlassianProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = p.contextWithHTTPClient(ctx)
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("atlassian code exchange: %w", err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a fresh token triple. Atlassian rotates
// refresh tokens, so the returned token carries a new one.
func (p *AtlassianProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	ctx = p.contextWithHTTPClient(ctx)
	tok, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("atlassian token refresh: %w", err)
	}
	return tok, nil
}

// ResolveAccountID returns the cloud ID of the first site the token can
// access. Returns ErrNoAccount when the token grants access to no site.
func (p *AtlassianProvider) ResolveAccountID(ctx context.Context, token *oauth2.Token) (string, error) {
	ctx = p.contextWithHTTPClient(ctx)
	client := p.config.Client(ctx, token)

	resp, err := client.Get(atlassianResourcesURL)
	if err != nil {
		return "", fmt.Errorf("fetch accessible resources: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Join(ErrRequestFailed, fmt.Errorf("accessible resources: status=%d body=%s", resp.StatusCode, body))
	}

	var resources []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return "", errors.Join(ErrDecodeFailed, fmt.Errorf("decode accessible resources: %w", err))
	}
	if len(resources) == 0 {
		return "", ErrNoAccount
	}

	return resources[0].ID, nil
}

func (p *AtlassianProvider) contextWithHTTPClient(ctx context.Context) context.Context {
	if p.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	return ctx
}
