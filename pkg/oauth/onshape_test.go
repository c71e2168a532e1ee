package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/partsync/pkg/oauth"
)

var _ oauth.Provider = (*oauth.OnshapeProvider)(nil)

func validOnshapeConfig() oauth.OnshapeConfig {
	return oauth.OnshapeConfig{
		ClientID:     "test-id",
		ClientSecret: "test-secret",
		RedirectURL:  "https://example.com/auth/onshape/callback",
	}
}

func TestNewOnshapeProvider(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		p, err := oauth.NewOnshapeProvider(validOnshapeConfig())
		require.NoError(t, err)
		require.NotNil(t, p)
	})

	t.Run("missing client ID", func(t *testing.T) {
		t.Parallel()
		cfg := validOnshapeConfig()
		cfg.ClientID = ""
		p, err := oauth.NewOnshapeProvider(cfg)
		require.ErrorIs(t, err, oauth.ErrMissingClientID)
		require.Nil(t, p)
	})

	t.Run("missing client secret", func(t *testing.T) {
		t.Parallel()
		cfg := validOnshapeConfig()
		cfg.ClientSecret = ""
		p, err := oauth.NewOnshapeProvider(cfg)
		require.ErrorIs(t, err, oauth.ErrMissingClientSecret)
		require.Nil(t, p)
	})

	t.Run("missing redirect URL", func(t *testing.T) {
		t.Parallel()
		cfg := validOnshapeConfig()
		cfg.RedirectURL = ""
		p, err := oauth.NewOnshapeProvider(cfg)
		require.ErrorIs(t, err, oauth.ErrMissingRedirectURL)
		require.Nil(t, p)
	})
}

func TestOnshapeProvider_AuthCodeURL(t *testing.T) {
	t.Parallel()

	t.Run("omits scope when not configured", func(t *testing.T) {
		t.Parallel()
		p, err := oauth.NewOnshapeProvider(validOnshapeConfig())
		require.NoError(t, err)

		u := p.AuthCodeURL("test-state")
		require.Contains(t, u, "https://oauth.onshape.com/oauth/authorize")
		require.Contains(t, u, "state=test-state")
		require.Contains(t, u, "response_type=code")
		require.NotContains(t, u, "scope=")
	})

	t.Run("includes configured scopes", func(t *testing.T) {
		t.Parallel()
		cfg := validOnshapeConfig()
		cfg.Scopes = []string{"OAuth2Read"}
		p, err := oauth.NewOnshapeProvider(cfg)
		require.NoError(t, err)

		u := p.AuthCodeURL("state")
		require.Contains(t, u, "scope=OAuth2Read")
	})

	t.Run("includes redirect URI", func(t *testing.T) {
		t.Parallel()
		p, err := oauth.NewOnshapeProvider(validOnshapeConfig())
		require.NoError(t, err)

		u := p.AuthCodeURL("state")
		require.Contains(t, u, "redirect_uri=")
		require.Contains(t, u, "example.com")
	})
}

func TestOnshapeProvider_AuthorizeEndpoint(t *testing.T) {
	t.Parallel()
	p, err := oauth.NewOnshapeProvider(validOnshapeConfig())
	require.NoError(t, err)
	require.Equal(t, "https://oauth.onshape.com/oauth/authorize", p.AuthorizeEndpoint())
}

func TestOnshapeProvider_Exchange(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var gotGrant, gotCode, gotRedirect string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotGrant = r.FormValue("grant_type")
			gotCode = r.FormValue("code")
			gotRedirect = r.FormValue("redirect_uri")
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "new-access",
				"refresh_token": "new-refresh",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		})

		p, err := oauth.NewOnshapeProvider(validOnshapeConfig(),
			oauth.WithHTTPClient(&http.Client{Transport: &onshapeRewriteTransport{handler: handler}}),
		)
		require.NoError(t, err)

		tok, err := p.Exchange(context.Background(), "auth-code")
		require.NoError(t, err)
		require.Equal(t, "new-access", tok.AccessToken)
		require.Equal(t, "new-refresh", tok.RefreshToken)
		require.False(t, tok.Expiry.IsZero())

		require.Equal(t, "authorization_code", gotGrant)
		require.Equal(t, "auth-code", gotCode)
		require.Equal(t, "https://example.com/auth/onshape/callback", gotRedirect)
	})

	t.Run("provider rejects code", func(t *testing.T) {
		t.Parallel()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		})

		p, err := oauth.NewOnshapeProvider(validOnshapeConfig(),
			oauth.WithHTTPClient(&http.Client{Transport: &onshapeRewriteTransport{handler: handler}}),
		)
		require.NoError(t, err)

		_, err = p.Exchange(context.Background(), "bad-code")
		require.Error(t, err)
	})
}

func TestOnshapeProvider_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var gotGrant, gotRefresh string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotGrant = r.FormValue("grant_type")
			gotRefresh = r.FormValue("refresh_token")
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "refreshed-access",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		})

		p, err := oauth.NewOnshapeProvider(validOnshapeConfig(),
			oauth.WithHTTPClient(&http.Client{Transport: &onshapeRewriteTransport{handler: handler}}),
		)
		require.NoError(t, err)

		tok, err := p.Refresh(context.Background(), "stored-refresh")
		require.NoError(t, err)
		require.Equal(t, "refreshed-access", tok.AccessToken)
		// No refresh_token in the response: the stored one is carried over.
		require.Equal(t, "stored-refresh", tok.RefreshToken)

		require.Equal(t, "refresh_token", gotGrant)
		require.Equal(t, "stored-refresh", gotRefresh)
	})

	t.Run("empty refresh token", func(t *testing.T) {
		t.Parallel()
		p, err := oauth.NewOnshapeProvider(validOnshapeConfig())
		require.NoError(t, err)

		_, err = p.Refresh(context.Background(), "")
		require.ErrorIs(t, err, oauth.ErrNoRefreshToken)
	})

	t.Run("provider rejects refresh token", func(t *testing.T) {
		t.Parallel()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		})

		p, err := oauth.NewOnshapeProvider(validOnshapeConfig(),
			oauth.WithHTTPClient(&http.Client{Transport: &onshapeRewriteTransport{handler: handler}}),
		)
		require.NoError(t, err)

		_, err = p.Refresh(context.Background(), "stale-refresh")
		require.Error(t, err)
	})
}

// onshapeRewriteTransport intercepts requests to Onshape endpoints and routes
// them to a local handler instead.
type onshapeRewriteTransport struct {
	handler http.Handler
}

func (t *onshapeRewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !strings.Contains(req.URL.Host, "onshape.com") {
		return http.DefaultTransport.RoundTrip(req)
	}
	recorder := httptest.NewRecorder()
	t.handler.ServeHTTP(recorder, req)
	return recorder.Result(), nil
}
