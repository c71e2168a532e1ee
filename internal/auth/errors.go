package auth

import "errors"

var (
	// ErrUnknownProvider is returned when a route names a provider that is
	// not registered with the service.
	ErrUnknownProvider = errors.New("auth: unknown provider")

	// ErrNotAuthenticated is returned when a token is requested for a
	// provider with no stored token pair.
	ErrNotAuthenticated = errors.New("auth: provider not authenticated")

	// ErrRefreshFailed is returned when a refresh-token exchange fails.
	// The provider's stored tokens are cleared before this is returned;
	// the user must re-authenticate that provider.
	ErrRefreshFailed = errors.New("auth: token refresh failed")

	// ErrProviderDenied is returned when the provider redirects back with
	// an explicit error parameter (e.g. the user denied consent).
	ErrProviderDenied = errors.New("auth: provider returned an error")

	// ErrNoCode is returned when a callback arrives without an
	// authorization code.
	ErrNoCode = errors.New("auth: no authorization code in callback")

	// ErrStateMissing is returned when a callback arrives but the session
	// holds no pending nonce for the provider. This usually means the
	// session cookie never reached the window that ran the flow; callers
	// recover by resetting the session and restarting the flow.
	ErrStateMissing = errors.New("auth: no pending authorization state")

	// ErrStateMismatch is returned when the callback state differs from
	// the stored pending nonce. Terminal: possible CSRF or replay.
	ErrStateMismatch = errors.New("auth: state does not match pending authorization")

	// ErrExchangeFailed is returned when the code-for-tokens exchange
	// fails. The session is destroyed before this is returned.
	ErrExchangeFailed = errors.New("auth: authorization code exchange failed")

	// ErrAccountResolution is returned when tokens were stored but the
	// provider's account identifier could not be resolved. Only the
	// affected provider's state is cleared.
	ErrAccountResolution = errors.New("auth: account resolution failed")

	// ErrTooManyRedirects is returned when the gate has auto-started the
	// authorization flow for the same provider more than the allowed
	// number of times without the provider becoming authenticated. This
	// usually indicates a cookie or third-party-context problem, not a
	// provider outage.
	ErrTooManyRedirects = errors.New("auth: too many automatic authorization redirects")
)
