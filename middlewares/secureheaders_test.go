package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/partsync/middlewares"
)

func TestSecureHeaders(t *testing.T) {
	t.Parallel()

	t.Run("denies framing by default", func(t *testing.T) {
		t.Parallel()

		h := middlewares.SecureHeaders()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, "frame-ancestors 'none'", rec.Header().Get("Content-Security-Policy"))
		require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		require.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	})

	t.Run("allows configured embed origins", func(t *testing.T) {
		t.Parallel()

		h := middlewares.SecureHeaders(
			middlewares.WithFrameAncestors("https://cad.onshape.com"),
		)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, "frame-ancestors 'self' https://cad.onshape.com",
			rec.Header().Get("Content-Security-Policy"))
	})
}
