// Package app wires the configuration, session store, OAuth flows, and
// web handlers into an HTTP server and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/partsync/internal/auth"
	"github.com/dmitrymomot/partsync/internal/config"
	"github.com/dmitrymomot/partsync/internal/session"
	"github.com/dmitrymomot/partsync/internal/syncer"
	"github.com/dmitrymomot/partsync/internal/web"
	"github.com/dmitrymomot/partsync/middlewares"
	"github.com/dmitrymomot/partsync/pkg/cookie"
	"github.com/dmitrymomot/partsync/pkg/health"
	"github.com/dmitrymomot/partsync/pkg/oauth"
)

// App is the assembled HTTP application.
type App struct {
	server          *http.Server
	log             *slog.Logger
	shutdownTimeout time.Duration
}

// New builds the application from configuration. Configuration problems
// (short session secret, missing OAuth credentials, unreadable sync
// profile) fail here, before the server starts.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	cookies, err := cookie.New(cfg.Session.Secret, cookie.WithSecure(cfg.App.IsProduction()))
	if err != nil {
		return nil, fmt.Errorf("app: cookie manager: %w", err)
	}
	sessions := session.New(cookies,
		session.WithCookieName(cfg.Session.CookieName),
		session.WithMaxAge(cfg.Session.MaxAge),
		session.WithLogger(log),
	)

	onshapeProvider, err := oauth.NewOnshapeProvider(cfg.Onshape)
	if err != nil {
		return nil, fmt.Errorf("app: onshape oauth: %w", err)
	}
	atlassianProvider, err := oauth.NewAtlassianProvider(cfg.Atlassian)
	if err != nil {
		return nil, fmt.Errorf("app: atlassian oauth: %w", err)
	}

	vaults := []*auth.Vault{
		auth.NewVault(onshapeProvider, auth.WithVaultLogger(log)),
		auth.NewVault(atlassianProvider, auth.WithVaultLogger(log)),
	}
	service := auth.NewService(cfg.App.BaseURL, vaults, auth.WithServiceLogger(log))

	profile, err := syncer.LoadProfile(cfg.Sync.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("app: sync profile: %w", err)
	}

	webHandler := web.NewHandler(service, profile, web.WithLogger(log))
	authHandler := auth.NewHandler(service,
		auth.WithHandlerLogger(log),
		auth.WithHandlerErrorRenderer(webHandler),
	)
	gate := auth.NewGate(service,
		[]string{session.ProviderOnshape, session.ProviderAtlassian},
		auth.WithGateLogger(log),
		auth.WithGateErrorRenderer(webHandler),
	)

	router := chi.NewRouter()
	router.Use(
		middlewares.RequestID(),
		middlewares.Logging(log),
		middlewares.Recover(middlewares.WithRecoverLogger(log)),
		middlewares.SecureHeaders(middlewares.WithFrameAncestors(cfg.App.EmbedOrigins...)),
		sessions.Middleware(),
	)

	router.Get("/healthz", health.LivenessHandler())
	router.Get("/readyz", health.ReadinessHandler(health.Checks{
		"sync-profile": func(ctx context.Context) error {
			_, err := syncer.LoadProfile(cfg.Sync.ProfilePath)
			return err
		},
	}, health.WithLogger(log)))

	router.Route("/auth", authHandler.Routes)
	webHandler.PublicRoutes(router)
	router.Group(func(r chi.Router) {
		r.Use(gate.Middleware())
		webHandler.ProtectedRoutes(r)
	})

	return &App{
		server: &http.Server{
			Addr:              cfg.App.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:             log,
		shutdownTimeout: cfg.App.ShutdownTimeout,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. On cancellation the server drains gracefully within
// the configured timeout.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("shutdown failed", slog.String("error", err.Error()))
		return err
	}

	a.log.Info("shutdown completed")
	return nil
}
