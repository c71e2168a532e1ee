package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/partsync/internal/session"
	"github.com/dmitrymomot/partsync/pkg/logger"
)

// Handler exposes the authorization flows over HTTP. Mounted at /auth, it
// serves for each registered provider:
//
//	GET  /{provider}           start a flow (302, or JSON in popup mode)
//	GET  /{provider}/callback  provider redirect target
//	POST /{provider}/exchange  opener-invoked code exchange (popup mode)
//	GET  /{provider}/redirect  same-origin cookie-priming bridge
//	GET  /logout               destroy the session
//	GET  /status               per-provider authentication state
//	GET  /connect.js           opener-side popup coordination script
type Handler struct {
	service *Service
	errors  ErrorRenderer
	log     *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler's logger.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHandlerErrorRenderer sets the renderer for terminal error pages.
func WithHandlerErrorRenderer(er ErrorRenderer) HandlerOption {
	return func(h *Handler) {
		if er != nil {
			h.errors = er
		}
	}
}

// NewHandler creates the auth HTTP handler.
func NewHandler(service *Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service: service,
		errors:  plainErrorRenderer{},
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the auth endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/connect.js", h.handleConnectScript)
	r.Get("/logout", h.handleLogout)
	r.Get("/status", h.handleStatus)
	r.Get("/{provider}", h.handleBegin)
	r.Get("/{provider}/callback", h.handleCallback)
	r.Post("/{provider}/exchange", h.handleExchange)
	r.Get("/{provider}/redirect", h.handleBridge)
}

// handleBegin starts a flow. With popup=1 it replies with JSON for the
// opener script instead of redirecting, because the actual navigation
// happens in a popup window the opener is about to open.
func (h *Handler) handleBegin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	sess := session.FromRequest(r)
	popup := r.URL.Query().Get("popup") == "1"
	redirectTo := r.URL.Query().Get("redirect")

	res, err := h.service.Begin(r.Context(), sess, provider, redirectTo, popup)
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			http.NotFound(w, r)
			return
		}
		h.errors.RenderError(w, r, http.StatusInternalServerError,
			"Sign-in failed", "Could not start the authorization flow. Please try again.")
		return
	}

	if popup {
		writeJSON(w, http.StatusOK, beginResponse{
			Authenticated: res.Authenticated,
			RedirectTo:    res.RedirectTo,
			URL:           res.BridgeURL,
		})
		return
	}
	if res.Authenticated {
		http.Redirect(w, r, res.RedirectTo, http.StatusFound)
		return
	}
	http.Redirect(w, r, res.AuthURL, http.StatusFound)
}

type beginResponse struct {
	Authenticated bool   `json:"authenticated,omitempty"`
	RedirectTo    string `json:"redirectTo,omitempty"`
	URL           string `json:"url,omitempty"`
}

// handleCallback receives the provider redirect. Popup-mode flows get the
// relay page, which hands code and state to the opener; the opener then
// calls the exchange endpoint under its own cookie. Every other callback,
// including one whose session cookie never made it to this window, is
// completed server-side; Complete reports lost sessions and the flow is
// restarted with a fresh nonce.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if _, err := h.service.Vault(provider); err != nil {
		http.NotFound(w, r)
		return
	}
	sess := session.FromRequest(r)
	q := r.URL.Query()
	code, state, errParam := q.Get("code"), q.Get("state"), q.Get("error")

	if sess.State(provider).PendingMode == session.ModePopup {
		if errParam != "" {
			// The relay reports the error to the opener without calling the
			// exchange endpoint, so the failed flow's nonce dies here.
			sess.ClearPending(provider)
		}
		h.serveRelay(w, r, provider, code, state, errParam)
		return
	}

	target, err := h.service.Complete(r.Context(), sess, provider, code, state, errParam)
	if err != nil {
		if errors.Is(err, ErrStateMissing) {
			// Session lost mid-flow: restart with a fresh nonce instead of
			// dead-ending the user on a generic error.
			res, rerr := h.service.Restart(r.Context(), sess, provider, "", false)
			if rerr != nil {
				h.errors.RenderError(w, r, http.StatusInternalServerError,
					"Sign-in failed", "Could not restart the authorization flow. Please try again.")
				return
			}
			http.Redirect(w, r, res.AuthURL, http.StatusFound)
			return
		}
		sess.ClearAuthAttempts(provider)
		status, title, msg := describeError(provider, err)
		h.errors.RenderError(w, r, status, title, msg)
		return
	}

	sess.ClearAuthAttempts(provider)
	http.Redirect(w, r, target, http.StatusFound)
}

// exchangeRequest is the opener-posted body for popup-mode completion.
type exchangeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// exchangeResponse is the JSON reply for popup-mode completion. AuthURL is
// set when the flow was restarted because the session was lost: it carries
// a bridge URL with a fresh nonce the opener can open a new popup at.
type exchangeResponse struct {
	Success    bool   `json:"success"`
	RedirectTo string `json:"redirectTo,omitempty"`
	Error      string `json:"error,omitempty"`
	AuthURL    string `json:"authUrl,omitempty"`
}

// handleExchange completes a popup-mode flow. It runs under the opener's
// cookie, never the popup's, which sidesteps cross-window cookie sharing
// entirely: the window that started the flow is the one that finishes it.
func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if _, err := h.service.Vault(provider); err != nil {
		http.NotFound(w, r)
		return
	}
	sess := session.FromRequest(r)

	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, exchangeResponse{Success: false, Error: "invalid request body"})
		return
	}

	target, err := h.service.Complete(r.Context(), sess, provider, req.Code, req.State, "")
	if err != nil {
		sess.ClearAuthAttempts(provider)
		if errors.Is(err, ErrStateMissing) {
			res, rerr := h.service.Restart(r.Context(), sess, provider, "", true)
			if rerr != nil {
				writeJSON(w, http.StatusInternalServerError, exchangeResponse{Success: false, Error: "could not restart authorization"})
				return
			}
			writeJSON(w, http.StatusConflict, exchangeResponse{
				Success: false,
				Error:   "session lost, authorization restarted",
				AuthURL: res.BridgeURL,
			})
			return
		}
		status, _, msg := describeError(provider, err)
		writeJSON(w, status, exchangeResponse{Success: false, Error: msg})
		return
	}

	sess.ClearAuthAttempts(provider)
	writeJSON(w, http.StatusOK, exchangeResponse{Success: true, RedirectTo: target})
}

// handleBridge is the same-origin hop a popup visits before the provider.
// Re-issuing the session cookie here guarantees the popup's own jar holds
// the session before the cross-origin navigation; some embedded browser
// contexts do not reliably see cookies set only via the opener.
func (h *Handler) handleBridge(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	sess := session.FromRequest(r)
	q := r.URL.Query()
	dest, state := q.Get("url"), q.Get("state")

	if err := h.service.ValidateBridge(sess, provider, dest, state); err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			http.NotFound(w, r)
			return
		}
		h.log.WarnContext(r.Context(), "bridge validation failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		http.Redirect(w, r, SignInPath, http.StatusFound)
		return
	}

	sess.Touch()
	http.Redirect(w, r, dest, http.StatusFound)
}

// handleLogout destroys the session and returns to the root page.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session.FromRequest(r).Destroy()
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleStatus reports per-provider authentication state. Presence of an
// access token is what "connected" means here; expiry is the vault's
// concern.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	status := make(map[string]providerStatus, len(h.service.Providers()))
	for _, name := range h.service.Providers() {
		vault, _ := h.service.Vault(name)
		status[name] = providerStatus{Authenticated: vault.IsAuthenticated(sess)}
	}
	writeJSON(w, http.StatusOK, status)
}

type providerStatus struct {
	Authenticated bool `json:"authenticated"`
}

// describeError maps the flow error taxonomy onto user-facing messages.
func describeError(provider string, err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrProviderDenied):
		return http.StatusBadGateway, "Sign-in was not completed",
			"The provider reported an error or the request was denied. Please try connecting again."
	case errors.Is(err, ErrNoCode):
		return http.StatusBadRequest, "Sign-in was not completed",
			"The provider did not return an authorization code. Please try connecting again."
	case errors.Is(err, ErrStateMismatch):
		return http.StatusConflict, "Sign-in could not be verified",
			"The sign-in response did not match this browser session. Please start the sign-in again."
	case errors.Is(err, ErrExchangeFailed):
		return http.StatusBadGateway, "Sign-in failed",
			"Exchanging the authorization code with " + provider + " failed. Your session was reset; please sign in again."
	case errors.Is(err, ErrAccountResolution):
		return http.StatusBadGateway, "Sign-in failed",
			"Signed in to " + provider + ", but no accessible account could be resolved. Please reconnect."
	default:
		return http.StatusInternalServerError, "Sign-in failed",
			"An unexpected error occurred. Please try again."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
