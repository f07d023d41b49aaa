package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/tether"
	"github.com/loykin/tether/internal/address"
	"github.com/loykin/tether/internal/logger"
	"github.com/loykin/tether/internal/probe"
	"github.com/loykin/tether/pkg/client"
	"github.com/loykin/tether/pkg/template"
)

// command carries the output streams; handlers stay free of cobra for tests.
type command struct {
	out    io.Writer
	errOut io.Writer
}

// failurePoll is how often run checks for a backend that died after ready.
var failurePoll = 250 * time.Millisecond

// Run launches the backend and blocks until ctx is done or the backend fails.
// The backend is always stopped before Run returns.
func (c command) Run(ctx context.Context, f RunFlags) error {
	cfg, err := tether.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := logger.New(cfg.Log, c.errOut)

	if cfg.Metrics.Enabled {
		if err := tether.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}

	sh, err := tether.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sh.Close(); err != nil {
			log.Warn("backend stop reported an error", "error", err)
		}
	}()

	if cfg.Server.Enabled {
		srv, err := sh.NewHTTPServer()
		if err != nil {
			return fmt.Errorf("control server %s: %w", cfg.Server.Listen, err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info("control server listening", "addr", srv.Addr, "base_path", cfg.Server.BasePath)
	}

	if err := sh.Launch(ctx); err != nil {
		return err
	}
	url, err := sh.BackendURL(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, url)
	if f.NonBlocking {
		return nil
	}

	t := time.NewTicker(failurePoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-t.C:
			if st := sh.Status(); st.State == tether.Failed {
				return st.Err
			}
		}
	}
}

func newClient(f APIFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
}

// URL prints the backend URL, retrying while the host reports it starting.
func (c command) URL(ctx context.Context, f APIFlags) error {
	cl := newClient(f)
	deadline := time.Now().Add(f.Wait)
	for {
		u, err := cl.BackendURL(ctx)
		if err == nil {
			_, _ = fmt.Fprintln(c.out, u)
			return nil
		}
		if !errors.Is(err, client.ErrStarting) || time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (c command) State(ctx context.Context, f APIFlags) error {
	st, err := newClient(f).State(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, st)
	return nil
}

// Probe retries one probe until it succeeds or the timeout elapses.
func (c command) Probe(ctx context.Context, f ProbeFlags) error {
	addr, err := address.New(f.Scheme, f.Host, f.Port)
	if err != nil {
		return err
	}
	p, err := probe.New(f.Kind, probe.Options{HealthPath: f.Path, Command: f.Command, Insecure: f.Insecure})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	interval := f.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	var last error
	for attempt := 1; ; attempt++ {
		if last = p.Ready(ctx, addr); last == nil {
			_, _ = fmt.Fprintf(c.out, "%s ready (%s, %d attempts)\n", addr, p.Describe(), attempt)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready after %s: %w", addr, f.Timeout, last)
		case <-time.After(interval):
		}
	}
}

// Init writes a starter config file.
func (c command) Init(f InitFlags) error {
	if _, err := os.Stat(f.Output); err == nil && !f.Force {
		return fmt.Errorf("config file '%s' already exists (use --force to overwrite)", f.Output)
	}
	content, err := template.NewGenerator().GenerateTOML(template.TemplateType(f.Type), f.Name, f.Port)
	if err != nil {
		return fmt.Errorf("failed to generate template: %w", err)
	}
	if dir := filepath.Dir(f.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(f.Output, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintf(c.out, "Config written: %s\n", f.Output)
	_, _ = fmt.Fprintf(c.out, "Launch the backend with: tether run --config=%s\n", f.Output)
	return nil
}
