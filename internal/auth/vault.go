package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/dmitrymomot/partsync/internal/session"
	"github.com/dmitrymomot/partsync/pkg/logger"
	"github.com/dmitrymomot/partsync/pkg/oauth"
)

// RefreshSkew is how long before expiry a token is refreshed. Provider API
// calls made with a token inside this window could expire mid-flight, so
// ValidToken refreshes proactively.
const RefreshSkew = 5 * time.Minute

// Vault owns one provider's token lifecycle inside the session: storing
// the triple atomically, refreshing near expiry, and clearing on failure.
// All state lives in the session the caller passes in; the Vault itself is
// stateless and safe for concurrent use across requests.
type Vault struct {
	provider oauth.Provider
	log      *slog.Logger
	now      func() time.Time
}

// VaultOption configures a Vault.
type VaultOption func(*Vault)

// WithVaultLogger sets the vault's logger.
func WithVaultLogger(log *slog.Logger) VaultOption {
	return func(v *Vault) {
		if log != nil {
			v.log = log
		}
	}
}

// WithVaultClock overrides the vault's clock. Tests use this to place
// stored tokens inside or outside the refresh window.
func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVault creates a token vault for one provider.
func NewVault(provider oauth.Provider, opts ...VaultOption) *Vault {
	v := &Vault{
		provider: provider,
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Provider returns the provider this vault manages tokens for.
func (v *Vault) Provider() oauth.Provider {
	return v.provider
}

// IsAuthenticated reports whether the session holds an access token for
// this provider. Presence alone is what "connected" means for UI state;
// expiry is handled lazily by ValidToken.
func (v *Vault) IsAuthenticated(s *session.Session) bool {
	return s.State(v.provider.Name()).AccessToken != ""
}

// ValidToken returns an access token guaranteed to be outside the refresh
// window. If the stored token expires within RefreshSkew, a single
// refresh-token exchange is made first; on success the new triple replaces
// the old one in the session. On refresh failure the provider's stored
// state is cleared and ErrRefreshFailed is returned: a stale refresh token
// must not cause repeated silent calls to the provider, so there are no
// internal retries. Returns ErrNotAuthenticated when no token is stored.
func (v *Vault) ValidToken(ctx context.Context, s *session.Session) (string, error) {
	name := v.provider.Name()
	st := s.State(name)
	if st.AccessToken == "" {
		return "", ErrNotAuthenticated
	}

	if v.now().Before(time.UnixMilli(st.ExpiresAt).Add(-RefreshSkew)) {
		return st.AccessToken, nil
	}

	tok, err := v.provider.Refresh(ctx, st.RefreshToken)
	if err != nil {
		s.ClearTokens(name)
		v.log.WarnContext(ctx, "token refresh failed, provider session invalidated",
			slog.String("provider", name),
			slog.String("error", err.Error()))
		return "", errors.Join(ErrRefreshFailed, fmt.Errorf("refresh %s token: %w", name, err))
	}

	v.StoreTokens(s, tok)
	v.log.DebugContext(ctx, "access token refreshed", slog.String("provider", name))
	return tok.AccessToken, nil
}

// StoreTokens writes the token triple from a provider response into the
// session in one atomic assignment. A response without a refresh token
// keeps the stored one, covering providers that do not rotate refresh
// tokens on every exchange.
func (v *Vault) StoreTokens(s *session.Session, tok *oauth2.Token) {
	name := v.provider.Name()
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = s.State(name).RefreshToken
	}
	s.SetTokens(name, tok.AccessToken, refresh, tok.Expiry.UnixMilli())
}

// Clear removes the provider's tokens from the session. The other
// provider's state is untouched.
func (v *Vault) Clear(s *session.Session) {
	s.ClearTokens(v.provider.Name())
}
