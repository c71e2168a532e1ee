package auth

import (
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/partsync/internal/session"
	"github.com/dmitrymomot/partsync/pkg/logger"
)

// MaxAutoRedirects bounds how many times the gate auto-starts the
// authorization flow for one provider before giving up with a user-visible
// error. The bound is enforced server-side: a client that never manages to
// store the session cookie would otherwise loop through the provider
// forever.
const MaxAutoRedirects = 2

// ErrorRenderer renders a terminal, user-visible auth error. internal/web
// provides the HTML implementation; the gate falls back to http.Error.
type ErrorRenderer interface {
	RenderError(w http.ResponseWriter, r *http.Request, status int, title, message string)
}

// Gate guards pages that need both providers authenticated. Evaluated on
// every protected request, it either lets the request through, auto-starts
// the flow for the first unauthenticated provider, or renders a terminal
// error. Evaluation is idempotent: apart from the per-provider attempt
// counters and token refreshes, it writes nothing, so concurrent tabs are
// safe.
type Gate struct {
	service  *Service
	order    []string
	errors   ErrorRenderer
	log      *slog.Logger
	embedded func(*http.Request) bool
	bound    int
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the gate's logger.
func WithGateLogger(log *slog.Logger) GateOption {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// WithGateErrorRenderer sets the renderer for terminal error pages.
func WithGateErrorRenderer(er ErrorRenderer) GateOption {
	return func(g *Gate) {
		if er != nil {
			g.errors = er
		}
	}
}

// WithGateBound overrides the auto-redirect bound.
func WithGateBound(n int) GateOption {
	return func(g *Gate) {
		if n > 0 {
			g.bound = n
		}
	}
}

// WithGateEmbeddedDetector overrides how the gate detects requests served
// inside another site's frame, where a top-level redirect to the identity
// provider is not possible.
func WithGateEmbeddedDetector(fn func(*http.Request) bool) GateOption {
	return func(g *Gate) {
		if fn != nil {
			g.embedded = fn
		}
	}
}

// NewGate creates a gate evaluating providers in the given order.
func NewGate(service *Service, order []string, opts ...GateOption) *Gate {
	g := &Gate{
		service:  service,
		order:    order,
		errors:   plainErrorRenderer{},
		log:      logger.NewNop(),
		embedded: isFramed,
		bound:    MaxAutoRedirects,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware returns the gate as chi middleware. It must run after the
// session middleware.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromRequest(r)
			if sess == nil {
				g.errors.RenderError(w, r, http.StatusInternalServerError,
					"Internal error", "Session middleware is not configured.")
				return
			}

			// An explicit provider error on the incoming request is
			// terminal: auto-redirecting while the provider itself is
			// failing would loop forever.
			if errParam := r.URL.Query().Get("error"); errParam != "" {
				g.clearAttempts(sess)
				g.errors.RenderError(w, r, http.StatusBadGateway,
					"Sign-in failed",
					"The provider reported an error: "+errParam+". Please try connecting again.")
				return
			}

			for _, name := range g.order {
				vault, err := g.service.Vault(name)
				if err != nil {
					g.errors.RenderError(w, r, http.StatusInternalServerError,
						"Internal error", "Unknown authentication provider.")
					return
				}
				if !vault.IsAuthenticated(sess) {
					g.requireProvider(w, r, sess, name)
					return
				}
			}

			// Both authenticated: terminal success for the redirect loop,
			// then a refresh-if-needed pass. A failed refresh clears that
			// provider's tokens, so the re-check below sends the user back
			// into that provider's flow instead of serving the page with a
			// dead token.
			g.clearAttempts(sess)

			// No shared cancellation here: one provider's refresh failure
			// must not abort the other's refresh in flight.
			var eg errgroup.Group
			for _, name := range g.order {
				vault, _ := g.service.Vault(name)
				eg.Go(func() error {
					_, err := vault.ValidToken(r.Context(), sess)
					return err
				})
			}
			if err := eg.Wait(); err != nil {
				for _, name := range g.order {
					vault, _ := g.service.Vault(name)
					if !vault.IsAuthenticated(sess) {
						g.requireProvider(w, r, sess, name)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireProvider handles a NEED_<provider> transition: auto-start the
// flow while under the bound, otherwise render the loop-guard error.
func (g *Gate) requireProvider(w http.ResponseWriter, r *http.Request, sess *session.Session, provider string) {
	// Only the active provider's counter may grow; the bound applies per
	// gate evaluation, so moving on to the second provider must not trip
	// on the first provider's spent attempts.
	for _, other := range g.order {
		if other != provider {
			sess.ClearAuthAttempts(other)
		}
	}

	// Inside another site's frame a top-level hop to the identity provider
	// is impossible; the sign-in page drives a popup flow instead.
	if g.embedded(r) {
		http.Redirect(w, r, SignInPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	}

	attempts := sess.IncAuthAttempts(provider)
	if attempts > g.bound {
		sess.ClearAuthAttempts(provider)
		g.log.WarnContext(r.Context(), "redirect-loop guard tripped",
			slog.String("provider", provider),
			slog.Int("attempts", attempts))
		g.errors.RenderError(w, r, http.StatusLoopDetected,
			"Sign-in keeps restarting",
			"Automatic sign-in with "+provider+" was attempted several times without completing. "+
				"This usually means the browser is not keeping this site's cookies. "+
				"Please refresh the page or open the app in a new browser window and try again.")
		return
	}

	res, err := g.service.Begin(r.Context(), sess, provider, r.URL.RequestURI(), false)
	if err != nil {
		g.errors.RenderError(w, r, http.StatusInternalServerError,
			"Sign-in failed", "Could not start the authorization flow. Please try again.")
		return
	}
	if res.Authenticated {
		http.Redirect(w, r, res.RedirectTo, http.StatusFound)
		return
	}
	http.Redirect(w, r, res.AuthURL, http.StatusFound)
}

func (g *Gate) clearAttempts(sess *session.Session) {
	for _, name := range g.order {
		sess.ClearAuthAttempts(name)
	}
}

// isFramed reports whether the request was made from inside a frame, using
// the fetch metadata the browser attaches.
func isFramed(r *http.Request) bool {
	dest := r.Header.Get("Sec-Fetch-Dest")
	return dest == "iframe" || dest == "frame" || dest == "embed"
}

// plainErrorRenderer is the fallback when no HTML renderer is wired.
type plainErrorRenderer struct{}

func (plainErrorRenderer) RenderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	http.Error(w, title+": "+message, status)
}
