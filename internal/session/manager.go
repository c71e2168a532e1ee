package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/partsync/pkg/cookie"
	"github.com/dmitrymomot/partsync/pkg/logger"
)

// DefaultCookieName identifies the session cookie.
const DefaultCookieName = "psid"

// DefaultMaxAge is the session cookie lifetime. Sessions never expire
// server-side; the cookie's own max-age and stale token expiries are the
// only lifetime mechanisms.
const DefaultMaxAge = 30 * 24 * time.Hour

type ctxKey struct{}

// Manager loads sessions from the encrypted cookie and persists mutations
// back to it. Load never fails: an absent, corrupt, or tampered cookie
// yields a fresh empty session so every caller can proceed as anonymous.
type Manager struct {
	cookies *cookie.Manager
	log     *slog.Logger
	name    string
	maxAge  time.Duration
}

// Option configures the Manager.
type Option func(*Manager)

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.name = name
		}
	}
}

// WithMaxAge overrides the session cookie lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithLogger sets the logger for save failures.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates a session Manager on top of an encrypted cookie manager.
func New(cookies *cookie.Manager, opts ...Option) *Manager {
	m := &Manager{
		cookies: cookies,
		log:     logger.NewNop(),
		name:    DefaultCookieName,
		maxAge:  DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the session from the request cookie. It fails closed: any
// cookie error (absent, undecryptable, unparseable) produces a fresh empty
// session rather than an error.
func (m *Manager) Load(r *http.Request) *Session {
	payload, err := m.cookies.Get(r, m.name)
	if err != nil {
		return &Session{}
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return &Session{}
	}
	return &s
}

// Save serializes the session into the response cookie, or deletes the
// cookie for a destroyed session.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if s.IsDestroyed() {
		m.cookies.Delete(w, m.name)
		s.clearDirty()
		return nil
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := m.cookies.Set(w, m.name, payload, int(m.maxAge.Seconds())); err != nil {
		return err
	}
	s.clearDirty()
	return nil
}

// Middleware loads the session, puts it in the request context, and
// arranges for exactly one Set-Cookie per response: the cookie is written
// immediately before the first byte of any response that mutated the
// session, including error responses. Without this, token and nonce
// writes on failure paths would be silently lost.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := m.Load(r)

			rw := newResponseWriter(w)
			rw.onBeforeWrite(func() {
				if !s.IsDirty() {
					return
				}
				if err := m.Save(rw, s); err != nil {
					m.log.ErrorContext(r.Context(), "failed to persist session cookie",
						slog.String("error", err.Error()))
					// Serving the handler's response anyway would silently
					// lose whatever was just written to the session, tokens
					// included. Fail loudly instead.
					rw.fail(http.StatusInternalServerError, "session could not be saved")
				}
			})

			ctx := context.WithValue(r.Context(), ctxKey{}, s)
			next.ServeHTTP(rw, r.WithContext(ctx))

			// Handlers that never write leave the hook unfired; flush it so
			// the implicit 200 still carries the cookie.
			rw.finish()
		})
	}
}

// NewContext returns a context carrying the session. Middleware does this
// for every request; handlers under test use it directly.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session placed in the context by Middleware,
// or nil outside of it.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// FromRequest is shorthand for FromContext(r.Context()).
func FromRequest(r *http.Request) *Session {
	return FromContext(r.Context())
}
