// Package config loads the app configuration from the environment.
// Configuration is validated at startup: OAuth flows silently misbehave
// when run with partial credentials, so missing required values fail fast
// instead of surfacing as broken redirects later.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dmitrymomot/partsync/pkg/logger"
	"github.com/dmitrymomot/partsync/pkg/oauth"
)

// Config is the full app configuration.
type Config struct {
	App       AppConfig
	Session   SessionConfig
	Sync      SyncConfig
	Logger    logger.Config
	Onshape   oauth.OnshapeConfig
	Atlassian oauth.AtlassianConfig
}

// AppConfig holds the HTTP server settings.
type AppConfig struct {
	// Addr is the listen address.
	Addr string `env:"ADDR" envDefault:":8080"`

	// BaseURL is the app's public origin (scheme://host). Bridge URLs and
	// the popup postMessage target origin are derived from it.
	BaseURL string `env:"BASE_URL,required"`

	// Environment toggles production behavior such as the Secure cookie
	// flag.
	Environment string `env:"APP_ENV" envDefault:"development"`

	// EmbedOrigins lists origins allowed to embed the app in a frame
	// (e.g. the CAD tool's origin for the embedded integration).
	EmbedOrigins []string `env:"EMBED_ORIGINS" envSeparator:","`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// IsProduction reports whether the app runs in production mode.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SessionConfig holds the session cookie settings.
type SessionConfig struct {
	// Secret encrypts and authenticates the session cookie. At least 32
	// bytes.
	Secret string `env:"SESSION_SECRET,required"`

	// CookieName is the session cookie's name.
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"psid"`

	// MaxAge is the session cookie lifetime.
	MaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"720h"`
}

// SyncConfig locates the part-to-card sync profile.
type SyncConfig struct {
	// ProfilePath is the YAML sync profile file.
	ProfilePath string `env:"SYNC_PROFILE" envDefault:"sync.yaml"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return &cfg, nil
}
