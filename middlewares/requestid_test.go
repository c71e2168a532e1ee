package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/partsync/middlewares"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("generates an id when none is supplied", func(t *testing.T) {
		t.Parallel()

		var got string
		h := middlewares.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = middlewares.GetRequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, got)
		require.Equal(t, got, rec.Header().Get("X-Request-ID"))
	})

	t.Run("preserves an upstream id", func(t *testing.T) {
		t.Parallel()

		var got string
		h := middlewares.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = middlewares.GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "upstream-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, "upstream-1", got)
		require.Equal(t, "upstream-1", rec.Header().Get("X-Request-ID"))
	})

	t.Run("checks fallback headers in order", func(t *testing.T) {
		t.Parallel()

		var got string
		h := middlewares.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = middlewares.GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Correlation-ID", "corr-1")
		h.ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, "corr-1", got)
	})

	t.Run("custom generator", func(t *testing.T) {
		t.Parallel()

		h := middlewares.RequestID(
			middlewares.WithRequestIDGenerator(func() string { return "fixed-id" }),
		)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
	})
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, middlewares.GetRequestID(req.Context()))
}

func TestRequestIDExtractor(t *testing.T) {
	t.Parallel()

	extract := middlewares.RequestIDExtractor()

	var attrOK bool
	h := middlewares.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attr, ok := extract(r.Context())
		attrOK = ok && attr.Key == "request_id"
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, attrOK)

	_, ok := extract(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.False(t, ok)
}
