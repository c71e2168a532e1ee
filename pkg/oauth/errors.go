package oauth

import "errors"

var (
	// ErrMissingClientID is returned when the OAuth client ID is not provided.
	ErrMissingClientID = errors.New("oauth: missing client ID")

	// ErrMissingClientSecret is returned when the OAuth client secret is not provided.
	ErrMissingClientSecret = errors.New("oauth: missing client secret")

	// ErrMissingRedirectURL is returned when the OAuth redirect URL is not provided.
	ErrMissingRedirectURL = errors.New("oauth: missing redirect URL")

	// ErrNoRefreshToken is returned when a refresh is attempted without a
	// stored refresh token.
	ErrNoRefreshToken = errors.New("oauth: no refresh token")

	// ErrRequestFailed is returned when a provider endpoint returns a non-OK status.
	ErrRequestFailed = errors.New("oauth: request returned non-OK status")

	// ErrDecodeFailed is returned when decoding a provider response fails.
	ErrDecodeFailed = errors.New("oauth: failed to decode response")

	// ErrNoAccount is returned when account resolution succeeds but the
	// token has no accessible account.
	ErrNoAccount = errors.New("oauth: token grants access to no account")
)
