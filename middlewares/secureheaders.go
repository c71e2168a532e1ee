package middlewares

import (
	"net/http"
	"strings"
)

// SecureHeadersConfig configures the security headers middleware.
type SecureHeadersConfig struct {
	// FrameAncestors lists origins allowed to embed the app in a frame.
	// Empty means the app may not be framed at all. The CAD tool's origin
	// goes here when the app runs as an embedded integration.
	FrameAncestors []string
}

// SecureHeadersOption configures SecureHeadersConfig.
type SecureHeadersOption func(*SecureHeadersConfig)

// WithFrameAncestors allows the given origins to embed the app.
func WithFrameAncestors(origins ...string) SecureHeadersOption {
	return func(cfg *SecureHeadersConfig) {
		cfg.FrameAncestors = origins
	}
}

// SecureHeaders returns middleware setting baseline security headers.
// Framing is denied unless ancestors are configured; everything else is
// unconditional.
func SecureHeaders(opts ...SecureHeadersOption) func(http.Handler) http.Handler {
	cfg := &SecureHeadersConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	frameAncestors := "'none'"
	if len(cfg.FrameAncestors) > 0 {
		frameAncestors = "'self' " + strings.Join(cfg.FrameAncestors, " ")
	}
	csp := "frame-ancestors " + frameAncestors

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}
