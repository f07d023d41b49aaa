// Package tether launches a desktop shell's local backend server, waits
// until it actually accepts connections, tells the UI where it is, and
// shuts it down with the shell.
package tether

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/tether/internal/address"
	cfg "github.com/loykin/tether/internal/config"
	"github.com/loykin/tether/internal/locator"
	"github.com/loykin/tether/internal/metrics"
	iapi "github.com/loykin/tether/internal/server"
	"github.com/loykin/tether/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Address = address.Address

type State = supervisor.State

type Status = supervisor.Status

const (
	NotStarted = supervisor.NotStarted
	Starting   = supervisor.Starting
	Ready      = supervisor.Ready
	Failed     = supervisor.Failed
	Stopped    = supervisor.Stopped
)

type (
	SpawnError            = supervisor.SpawnError
	ReadinessTimeoutError = supervisor.ReadinessTimeoutError
	EarlyExitError        = supervisor.EarlyExitError
	UnavailableError      = locator.UnavailableError
)

var (
	ErrNotStarted     = supervisor.ErrNotStarted
	ErrAlreadyStarted = supervisor.ErrAlreadyStarted
	ErrStopped        = supervisor.ErrStopped
	ErrStillStarting  = locator.ErrStillStarting
)

// LoadConfig reads a TOML file (empty path: defaults only) with TETHER_*
// environment overrides.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Shell owns one supervised backend and the locator the UI queries.
type Shell struct {
	cfg *Config
	sup *supervisor.Supervisor
	loc *locator.Locator
	log *slog.Logger
}

// New builds a Shell from c. Nothing is spawned until Start.
func New(c *Config, log *slog.Logger) (*Shell, error) {
	if log == nil {
		log = slog.Default()
	}
	sc, err := c.Supervisor(log)
	if err != nil {
		return nil, err
	}
	sup := supervisor.New(sc)
	return &Shell{
		cfg: c,
		sup: sup,
		loc: locator.New(sup, c.Readiness.ResolveWait),
		log: log,
	}, nil
}

// Start spawns the backend without waiting for it.
func (s *Shell) Start(ctx context.Context) error { return s.sup.Start(ctx) }

// AwaitReady blocks until the backend serves, fails, or timeout elapses.
// timeout <= 0 uses readiness.timeout.
func (s *Shell) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return s.sup.AwaitReady(ctx, timeout)
}

// Launch is Start followed by AwaitReady with the configured timeout.
func (s *Shell) Launch(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.AwaitReady(ctx, 0)
}

// Stop terminates the backend. Safe to call repeatedly.
// wait <= 0 uses shutdown.grace.
func (s *Shell) Stop(wait time.Duration) error { return s.sup.Stop(wait) }

// Close stops the backend with the configured grace period.
func (s *Shell) Close() error { return s.Stop(0) }

func (s *Shell) State() State   { return s.sup.State() }
func (s *Shell) Status() Status { return s.sup.Status() }

// ResolveAddress returns the backend address once it serves.
func (s *Shell) ResolveAddress(ctx context.Context) (Address, error) {
	return s.loc.ResolveAddress(ctx)
}

// BackendURL returns scheme://host:port once the backend serves.
func (s *Shell) BackendURL(ctx context.Context) (string, error) {
	return s.loc.BackendURL(ctx)
}

// Router returns the control-surface router for embedding into another server.
func (s *Shell) Router(opts ...iapi.Option) *iapi.Router {
	base := []iapi.Option{iapi.WithLogger(s.log)}
	if s.cfg.Metrics.Enabled {
		base = append(base, iapi.WithMetrics(metrics.Handler()))
	}
	return iapi.NewRouter(s.loc, s.sup, s.cfg.Server.BasePath, append(base, opts...)...)
}

// NewHTTPServer serves the control surface on server.listen.
func (s *Shell) NewHTTPServer() (*http.Server, error) {
	return iapi.NewServer(s.cfg.Server.Listen, s.Router())
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
