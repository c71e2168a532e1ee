package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/partsync/pkg/logger"
)

// DefaultTimeout bounds one readiness evaluation across all checks.
const DefaultTimeout = 5 * time.Second

const (
	// StatusHealthy means every check passed.
	StatusHealthy = "healthy"
	// StatusUnhealthy means at least one check failed.
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes a single dependency.
type CheckFunc func(ctx context.Context) error

// Checks maps check names to their probe functions.
type Checks map[string]CheckFunc

// Response aggregates one readiness evaluation.
type Response struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks,omitempty"`
}

// Check is the outcome of a single probe.
type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type config struct {
	log     *slog.Logger
	timeout time.Duration
}

// Option configures check evaluation.
type Option func(*config)

// WithTimeout sets the shared timeout for one evaluation.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger failed checks are reported to.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		log:     logger.NewNop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// run evaluates all checks in parallel under the shared timeout.
func run(ctx context.Context, checks Checks, cfg *config) Response {
	if len(checks) == 0 {
		return Response{Status: StatusHealthy}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Check, len(checks))
		healthy = true
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := check(ctx)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = errors.Join(ErrCheckTimeout, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				results[name] = Check{Status: StatusUnhealthy, Error: err.Error()}
				cfg.log.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()))
				return
			}
			results[name] = Check{Status: StatusHealthy}
		}()
	}
	wg.Wait()

	status := StatusHealthy
	if !healthy {
		status = StatusUnhealthy
	}
	return Response{Status: status, Checks: results}
}
