package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dmitrymomot/partsync/internal/session"
	"github.com/dmitrymomot/partsync/pkg/logger"
	"github.com/dmitrymomot/partsync/pkg/oauth"
)

// nonceBytes is the CSRF nonce entropy: 32 random bytes (256 bits),
// base64url-encoded into the state parameter.
const nonceBytes = 32

// SignInPath is the shared cross-provider sign-in page, used as the
// post-auth target when no resume URL is stored and the other provider
// still needs connecting.
const SignInPath = "/signin"

// Service drives both providers' authorization-code flows against the
// session: it starts flows (nonce generation, popup-vs-redirect strategy,
// bridge URLs) and completes them (state validation, code exchange,
// account resolution, next-navigation decision).
type Service struct {
	vaults  map[string]*Vault
	baseURL string
	log     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service's logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the flow service. baseURL is the app's own origin
// (scheme://host), used to build same-origin bridge URLs.
func NewService(baseURL string, vaults []*Vault, opts ...ServiceOption) *Service {
	byName := make(map[string]*Vault, len(vaults))
	for _, v := range vaults {
		byName[v.Provider().Name()] = v
	}
	s := &Service{
		vaults:  byName,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Origin returns the app's own origin. The popup relay page uses it as
// the explicit postMessage target origin.
func (s *Service) Origin() string {
	return s.baseURL
}

// Vault returns the token vault for a provider, or ErrUnknownProvider.
func (s *Service) Vault(provider string) (*Vault, error) {
	v, ok := s.vaults[provider]
	if !ok {
		return nil, errors.Join(ErrUnknownProvider, fmt.Errorf("provider %q", provider))
	}
	return v, nil
}

// Providers returns the names of all registered providers.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.vaults))
	for name := range s.vaults {
		names = append(names, name)
	}
	return names
}

// BeginResult describes how the caller should continue after starting a
// flow.
type BeginResult struct {
	// Authenticated is set when the provider already had a token and no
	// flow was started; RedirectTo is where to send the user.
	Authenticated bool

	// RedirectTo is the post-auth resume target (only with Authenticated).
	RedirectTo string

	// AuthURL is the provider authorization URL carrying the CSRF state.
	AuthURL string

	// BridgeURL is the same-origin cookie-priming URL a popup should be
	// opened at instead of AuthURL. Set only in popup mode.
	BridgeURL string
}

// Begin starts (or resumes) the provider's authorization flow.
//
// An already-authenticated provider short-circuits without touching the
// session. A flow already in progress (pending nonce present, e.g. a
// duplicate tab) reuses the existing nonce and recomputes the same
// authorization URL, so two tabs cannot invalidate each other's state.
// Otherwise a fresh 256-bit nonce is generated and stored together with
// the flow mode and the post-auth redirect target.
//
// In popup mode the result carries a bridge URL: the popup must first hit
// the same-origin bridge (which re-issues the session cookie into the
// popup's own jar) before the cross-origin hop to the provider.
func (s *Service) Begin(ctx context.Context, sess *session.Session, provider, redirectTo string, popup bool) (BeginResult, error) {
	vault, err := s.Vault(provider)
	if err != nil {
		return BeginResult{}, err
	}

	if vault.IsAuthenticated(sess) {
		target := redirectTo
		if target == "" {
			target = SignInPath
		}
		return BeginResult{Authenticated: true, RedirectTo: target}, nil
	}

	mode := session.ModeRedirect
	if popup {
		mode = session.ModePopup
	}

	pending := sess.State(provider)
	nonce := pending.PendingState
	if nonce == "" {
		nonce, err = newNonce()
		if err != nil {
			return BeginResult{}, fmt.Errorf("generate state nonce: %w", err)
		}
	} else {
		// An in-flight attempt keeps its flow mode; a concurrent begin in
		// the other mode must not flip how its callback is handled.
		mode = pending.PendingMode
	}
	sess.SetPending(provider, nonce, mode)
	if redirectTo != "" {
		sess.SetPostAuthRedirect(redirectTo)
	}

	authURL := vault.Provider().AuthCodeURL(nonce)
	res := BeginResult{AuthURL: authURL}
	if popup {
		res.BridgeURL = s.bridgeURL(provider, authURL, nonce)
	}

	s.log.InfoContext(ctx, "authorization flow started",
		slog.String("provider", provider),
		slog.String("mode", mode))
	return res, nil
}

// Restart resets a session whose pending state was lost (cookie never
// reached the callback window) and begins a fresh flow. The new nonce is
// always distinct from whatever state value arrived in the dead callback.
func (s *Service) Restart(ctx context.Context, sess *session.Session, provider, redirectTo string, popup bool) (BeginResult, error) {
	sess.Reset()
	return s.Begin(ctx, sess, provider, redirectTo, popup)
}

// ValidateBridge checks a bridge request before the cross-origin hop: the
// state must equal the provider's pending nonce, and the destination must
// point at the provider's own authorization endpoint so the bridge cannot
// be abused as an open redirect.
func (s *Service) ValidateBridge(sess *session.Session, provider, rawURL, state string) error {
	vault, err := s.Vault(provider)
	if err != nil {
		return err
	}

	pending := sess.State(provider).PendingState
	if pending == "" {
		return ErrStateMissing
	}
	if state == "" || state != pending {
		return errors.Join(ErrStateMismatch, fmt.Errorf("bridge for %s", provider))
	}
	if !strings.HasPrefix(rawURL, vault.Provider().AuthorizeEndpoint()) {
		return fmt.Errorf("bridge for %s: destination is not the provider authorization endpoint", provider)
	}
	return nil
}

// Complete finishes the provider's flow from callback parameters and
// returns the next navigation target.
//
// The callback's state must exactly match the stored pending nonce. The
// nonce is consumed on match before the exchange, success or failure, so
// a replayed callback with the same state fails with ErrStateMismatch.
// A callback with no pending nonce at all returns ErrStateMissing; the
// caller recovers via Restart instead of dead-ending the user.
//
// On exchange failure the whole session is destroyed: partially-written
// token state is worse than forcing a clean restart. Account resolution
// failure (for providers that need a tenant ID) clears only that
// provider's state.
func (s *Service) Complete(ctx context.Context, sess *session.Session, provider, code, state, errParam string) (string, error) {
	vault, err := s.Vault(provider)
	if err != nil {
		return "", err
	}

	if errParam != "" {
		sess.ClearPending(provider)
		s.log.WarnContext(ctx, "provider returned authorization error",
			slog.String("provider", provider),
			slog.String("provider_error", errParam))
		return "", errors.Join(ErrProviderDenied, fmt.Errorf("provider %s: %s", provider, errParam))
	}
	if code == "" {
		return "", ErrNoCode
	}

	pending := sess.State(provider).PendingState
	if pending == "" {
		// No pending nonce and the provider is already authenticated: this
		// is a replayed callback for a flow that completed, not a lost
		// session. Restarting here would throw away valid tokens.
		if vault.IsAuthenticated(sess) {
			return "", ErrStateMismatch
		}
		return "", ErrStateMissing
	}
	if state != pending {
		return "", ErrStateMismatch
	}

	// Single-use: the nonce is gone before the exchange, whatever happens
	// next, so a second callback with the same state is a replay.
	sess.ClearPending(provider)

	tok, err := vault.Provider().Exchange(ctx, code)
	if err != nil {
		sess.Destroy()
		s.log.ErrorContext(ctx, "authorization code exchange failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		return "", errors.Join(ErrExchangeFailed, err)
	}
	vault.StoreTokens(sess, tok)

	if resolver, ok := vault.Provider().(oauth.AccountResolver); ok {
		accountID, err := resolver.ResolveAccountID(ctx, tok)
		if err != nil {
			vault.Clear(sess)
			s.log.ErrorContext(ctx, "account resolution failed",
				slog.String("provider", provider),
				slog.String("error", err.Error()))
			return "", errors.Join(ErrAccountResolution, err)
		}
		sess.SetAccountID(provider, accountID)
	}

	s.log.InfoContext(ctx, "provider authenticated", slog.String("provider", provider))
	return s.nextTarget(sess), nil
}

// nextTarget resolves where to send the user after a successful exchange:
// the stored resume URL once both providers are connected, else the shared
// sign-in page so the user can connect the other provider.
func (s *Service) nextTarget(sess *session.Session) string {
	for _, vault := range s.vaults {
		if !vault.IsAuthenticated(sess) {
			return SignInPath
		}
	}
	if target := sess.RedirectTarget(); target != "" {
		sess.ClearPostAuthRedirect()
		return target
	}
	return "/"
}

// bridgeURL builds the same-origin cookie-priming URL for a popup.
func (s *Service) bridgeURL(provider, authURL, nonce string) string {
	q := url.Values{}
	q.Set("url", authURL)
	q.Set("state", nonce)
	return s.baseURL + "/auth/" + provider + "/redirect?" + q.Encode()
}

func newNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
