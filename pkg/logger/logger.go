package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// Config holds logger configuration.
type Config struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	SentryDSN   string `env:"SENTRY_DSN"`
	Environment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
}

// ContextExtractor extracts a slog attribute from context.
// Extractors run per log call so request-scoped values stay fresh.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// secretAttrs are attribute keys whose values are masked before any handler
// sees them. OAuth access tokens, refresh tokens, and authorization codes
// must never reach logs or Sentry.
var secretAttrs = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"code":          {},
	"client_secret": {},
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretAttrs[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// New creates a JSON logger writing to stdout. If cfg.SentryDSN is set,
// warnings and errors are additionally forwarded to Sentry; errors create
// Issues. An empty DSN or a failed Sentry init degrades to stdout-only
// logging, so the same code path works in development.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	})

	if cfg.SentryDSN == "" {
		return slog.New(newExtractorHandler(stdout, extractors))
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		EnableLogs:  true,
	}); err != nil {
		slog.New(stdout).Error("failed to initialize Sentry", slog.String("error", err.Error()))
		return slog.New(newExtractorHandler(stdout, extractors))
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	return slog.New(newExtractorHandler(newFanoutHandler(stdout, sentryHandler), extractors))
}

// NewNop creates a logger that discards all output. Used as a default in
// constructors and in tests.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WrapHandler wraps an arbitrary slog.Handler with the extractor and
// secret-masking pipeline New applies. Useful for tests and for routing
// logs to custom destinations.
func WrapHandler(h slog.Handler, extractors ...ContextExtractor) slog.Handler {
	return newExtractorHandler(h, extractors)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
