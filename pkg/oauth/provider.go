package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider abstracts provider-specific OAuth operations.
// Each provider (Onshape, Atlassian) implements this interface and handles
// its own endpoint quirks internally, including extra authorization
// parameters and scope defaults.
type Provider interface {
	// Name returns the provider identifier (e.g., "onshape", "atlassian").
	Name() string

	// AuthCodeURL generates the authorization URL for the OAuth flow.
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string

	// AuthorizeEndpoint returns the provider's authorization endpoint URL.
	// Same-origin bridge handlers use it to verify that a URL they are asked
	// to redirect to actually points at this provider.
	AuthorizeEndpoint() string

	// Exchange trades an authorization code for tokens, using the configured
	// client credentials and redirect URL. The redirect URL sent here must
	// match the one used in AuthCodeURL byte for byte.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh trades a refresh token for a fresh token triple. A single
	// attempt is made; callers decide what a failure means for stored state.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// AccountResolver is implemented by providers whose REST API is scoped by a
// tenant identifier that must be resolved once after authentication and
// carried alongside the tokens.
type AccountResolver interface {
	// ResolveAccountID returns the account identifier granted to the token.
	ResolveAccountID(ctx context.Context, token *oauth2.Token) (string, error)
}
