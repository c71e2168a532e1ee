// Package web serves the app's minimal server-rendered pages: the shared
// sign-in page, part browsing, card listing, the sync action, and the
// thumbnail proxy. Every page that touches provider data sits behind the
// auth gate and reaches the provider APIs through the token vaults.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/partsync/internal/auth"
	"github.com/dmitrymomot/partsync/internal/session"
	"github.com/dmitrymomot/partsync/internal/syncer"
	"github.com/dmitrymomot/partsync/pkg/atlassian"
	"github.com/dmitrymomot/partsync/pkg/logger"
	"github.com/dmitrymomot/partsync/pkg/onshape"
	"github.com/dmitrymomot/partsync/pkg/sanitizer"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Handler renders the app pages.
type Handler struct {
	service       *auth.Service
	profile       syncer.Profile
	log           *slog.Logger
	onshapeOpts   []onshape.Option
	atlassianOpts []atlassian.Option
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithOnshapeOptions passes options to per-request Onshape clients.
// Tests use it to point the client at a local server.
func WithOnshapeOptions(opts ...onshape.Option) Option {
	return func(h *Handler) {
		h.onshapeOpts = opts
	}
}

// WithAtlassianOptions passes options to per-request Atlassian clients.
func WithAtlassianOptions(opts ...atlassian.Option) Option {
	return func(h *Handler) {
		h.atlassianOpts = opts
	}
}

// NewHandler creates the web handler.
func NewHandler(service *auth.Service, profile syncer.Profile, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		profile: profile,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PublicRoutes registers the pages reachable without authentication.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/signin", h.handleSignIn)
}

// ProtectedRoutes registers the pages behind the dual-auth gate.
func (h *Handler) ProtectedRoutes(r chi.Router) {
	r.Get("/", h.handleHome)
	r.Get("/parts", h.handleDocuments)
	r.Get("/parts/{documentID}/{workspaceID}", h.handleParts)
	r.Get("/cards", h.handleCards)
	r.Post("/sync", h.handleSync)
	r.Get("/thumbnail", h.handleThumbnail)
}

// RenderError renders the shared error page. It also serves the auth
// gate's terminal errors.
func (h *Handler) RenderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct{ Title, Message string }{Title: title, Message: message}
	if err := pages.ExecuteTemplate(w, "error", data); err != nil {
		h.log.ErrorContext(r.Context(), "failed to render error page", "error", err.Error())
	}
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/parts", http.StatusFound)
}

type providerView struct {
	Name          string
	Label         string
	Authenticated bool
	Popup         bool
}

// handleSignIn is the shared cross-provider sign-in page. The CAD provider
// connects via full-page redirect; the project tool connects via popup,
// since the app typically runs embedded in the CAD tool's frame where a
// top-level hop to the identity provider is impossible.
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)

	views := []providerView{
		{Name: session.ProviderOnshape, Label: "Onshape", Popup: false},
		{Name: session.ProviderAtlassian, Label: "Jira", Popup: true},
	}
	all := true
	for i := range views {
		vault, err := h.service.Vault(views[i].Name)
		if err != nil {
			continue
		}
		views[i].Authenticated = vault.IsAuthenticated(sess)
		all = all && views[i].Authenticated
	}

	next := safeNext(r.URL.Query().Get("next"))
	nextOrDefault := next
	if nextOrDefault == "" {
		nextOrDefault = "/parts"
	}

	// Provider-supplied error strings end up in the page; strip any markup.
	errMsg := sanitizer.Text(r.URL.Query().Get("error"))
	if len(errMsg) > 200 {
		errMsg = errMsg[:200]
	}

	data := struct {
		Title         string
		Error         string
		Next          string
		NextOrDefault string
		Providers     []providerView
		AllConnected  bool
	}{
		Title:         "Connect accounts",
		Error:         errMsg,
		Next:          next,
		NextOrDefault: nextOrDefault,
		Providers:     views,
		AllConnected:  all,
	}
	h.render(w, r, "signin", data)
}

func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.onshape(r).Documents(r.Context())
	if err != nil {
		h.renderProviderError(w, r, err)
		return
	}
	for i := range docs {
		docs[i].Name = sanitizer.Text(docs[i].Name)
	}

	data := struct {
		Title     string
		Documents []onshape.Document
	}{Title: "Documents", Documents: docs}
	h.render(w, r, "documents", data)
}

func (h *Handler) handleParts(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	workspaceID := chi.URLParam(r, "workspaceID")

	parts, err := h.onshape(r).Parts(r.Context(), documentID, workspaceID)
	if err != nil {
		h.renderProviderError(w, r, err)
		return
	}
	for i := range parts {
		parts[i].Name = sanitizer.Text(parts[i].Name)
		parts[i].PartNumber = sanitizer.Text(parts[i].PartNumber)
	}

	data := struct {
		Title       string
		DocumentID  string
		WorkspaceID string
		Parts       []onshape.Part
	}{Title: "Parts", DocumentID: documentID, WorkspaceID: workspaceID, Parts: parts}
	h.render(w, r, "parts", data)
}

func (h *Handler) handleCards(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	cloudID := sess.State(session.ProviderAtlassian).AccountID

	cards, err := h.atlassian(r).Cards(r.Context(), cloudID, h.profile.Project, h.profile.Label)
	if err != nil {
		h.renderProviderError(w, r, err)
		return
	}
	for i := range cards {
		cards[i].Summary = sanitizer.Text(cards[i].Summary)
	}

	data := struct {
		Title   string
		Project string
		Cards   []atlassian.Card
	}{Title: "Cards", Project: h.profile.Project, Cards: cards}
	h.render(w, r, "cards", data)
}

// handleSync runs one part-to-card reconciliation for a document workspace.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.RenderError(w, r, http.StatusBadRequest, "Invalid request", "The sync form could not be parsed.")
		return
	}
	documentID := r.PostFormValue("document")
	workspaceID := r.PostFormValue("workspace")
	if documentID == "" || workspaceID == "" {
		h.RenderError(w, r, http.StatusBadRequest, "Invalid request", "A document and workspace must be selected.")
		return
	}

	parts, err := h.onshape(r).Parts(r.Context(), documentID, workspaceID)
	if err != nil {
		h.renderProviderError(w, r, err)
		return
	}

	sess := session.FromRequest(r)
	cloudID := sess.State(session.ProviderAtlassian).AccountID

	s := syncer.New(h.atlassian(r), h.profile, syncer.WithLogger(h.log))
	report, err := s.Sync(r.Context(), cloudID, parts)
	if err != nil {
		h.renderProviderError(w, r, err)
		return
	}

	h.log.InfoContext(r.Context(), "sync completed",
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", len(report.Failed)))

	data := struct {
		Title  string
		Report syncer.Report
	}{Title: "Sync", Report: report}
	h.render(w, r, "sync", data)
}

// handleThumbnail streams a document thumbnail through the app, so the
// browser never needs the CAD access token. The client rejects hrefs that
// do not point at the CAD API origin.
func (h *Handler) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	href := r.URL.Query().Get("href")
	if href == "" {
		http.Error(w, "missing href", http.StatusBadRequest)
		return
	}

	body, contentType, err := h.onshape(r).Thumbnail(r.Context(), href)
	if err != nil {
		h.log.WarnContext(r.Context(), "thumbnail fetch failed", slog.String("error", err.Error()))
		http.Error(w, "thumbnail unavailable", http.StatusBadGateway)
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = io.Copy(w, body)
}

// onshape builds a CAD client whose token source pulls from this request's
// session vault, refreshing transparently.
func (h *Handler) onshape(r *http.Request) *onshape.Client {
	sess := session.FromRequest(r)
	vault, _ := h.service.Vault(session.ProviderOnshape)
	ts := func(ctx context.Context) (string, error) {
		return vault.ValidToken(ctx, sess)
	}
	return onshape.New(ts, h.onshapeOpts...)
}

func (h *Handler) atlassian(r *http.Request) *atlassian.Client {
	sess := session.FromRequest(r)
	vault, _ := h.service.Vault(session.ProviderAtlassian)
	ts := func(ctx context.Context) (string, error) {
		return vault.ValidToken(ctx, sess)
	}
	return atlassian.New(ts, h.atlassianOpts...)
}

// renderProviderError maps provider-call failures to navigable states: an
// expired or missing token sends the user back to sign-in for the affected
// provider, anything else renders the error page.
func (h *Handler) renderProviderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrRefreshFailed) {
		http.Redirect(w, r, auth.SignInPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	}

	var onshapeErr *onshape.APIError
	var atlassianErr *atlassian.APIError
	switch {
	case errors.As(err, &onshapeErr) && onshapeErr.Retryable,
		errors.As(err, &atlassianErr) && atlassianErr.Retryable:
		h.RenderError(w, r, http.StatusBadGateway, "Provider is unavailable",
			"The provider API is temporarily unavailable. Please try again shortly.")
	default:
		h.log.ErrorContext(r.Context(), "provider call failed", slog.String("error", err.Error()))
		h.RenderError(w, r, http.StatusBadGateway, "Provider call failed",
			"A provider API call failed. Please try again, or reconnect your accounts.")
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.log.ErrorContext(r.Context(), "failed to render page",
			slog.String("template", name),
			slog.String("error", err.Error()))
	}
}

// safeNext accepts only same-site relative paths as resume targets, so the
// next parameter cannot become an open redirect.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	return next
}
