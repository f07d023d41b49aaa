package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/tether/internal/address"
	"github.com/loykin/tether/internal/logger"
	"github.com/loykin/tether/internal/metrics"
	"github.com/loykin/tether/internal/probe"
	"github.com/loykin/tether/internal/process"
	"github.com/loykin/tether/internal/supervisor"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TETHER_BACKEND_PORT.
const EnvPrefix = "TETHER"

// DefaultCommand launches the bundled Python backend.
const DefaultCommand = "python -m uvicorn backend.app:app --host 127.0.0.1 --port 5173"

// Config is the whole TOML document.
type Config struct {
	Backend   BackendConfig   `toml:"backend" mapstructure:"backend"`
	Readiness ReadinessConfig `toml:"readiness" mapstructure:"readiness"`
	Shutdown  ShutdownConfig  `toml:"shutdown" mapstructure:"shutdown"`
	Log       logger.Config   `toml:"log" mapstructure:"log"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
}

type BackendConfig struct {
	Name       string   `toml:"name" mapstructure:"name"`
	Command    string   `toml:"command" mapstructure:"command"`
	Args       []string `toml:"args" mapstructure:"args"`
	WorkDir    string   `toml:"work_dir" mapstructure:"work_dir"`
	Env        []string `toml:"env" mapstructure:"env"`
	EnvFiles   []string `toml:"env_files" mapstructure:"env_files"`
	Shell      bool     `toml:"shell" mapstructure:"shell"`
	LoginShell bool     `toml:"login_shell" mapstructure:"login_shell"`
	Scheme     string   `toml:"scheme" mapstructure:"scheme"`
	Host       string   `toml:"host" mapstructure:"host"`
	Port       int      `toml:"port" mapstructure:"port"`
}

type ReadinessConfig struct {
	Probe        string        `toml:"probe" mapstructure:"probe"`
	HealthPath   string        `toml:"health_path" mapstructure:"health_path"`
	Command      string        `toml:"command" mapstructure:"command"`
	Insecure     bool          `toml:"insecure" mapstructure:"insecure"`
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	ProbeTimeout time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`
	Timeout      time.Duration `toml:"timeout" mapstructure:"timeout"`
	ResolveWait  time.Duration `toml:"resolve_wait" mapstructure:"resolve_wait"`
}

type ShutdownConfig struct {
	Grace time.Duration `toml:"grace" mapstructure:"grace"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool                `toml:"enabled" mapstructure:"enabled"`
	Usage   metrics.UsageConfig `toml:"usage" mapstructure:",squash"`
}

var defaults = map[string]any{
	"backend.name":        "backend",
	"backend.command":     DefaultCommand,
	"backend.args":        []string{},
	"backend.work_dir":    "",
	"backend.env":         []string{},
	"backend.env_files":   []string{},
	"backend.shell":       false,
	"backend.login_shell": false,
	"backend.scheme":      address.DefaultScheme,
	"backend.host":        address.DefaultHost,
	"backend.port":        address.DefaultPort,

	"readiness.probe":         probe.KindTCP,
	"readiness.health_path":   "/",
	"readiness.command":       "",
	"readiness.insecure":      false,
	"readiness.poll_interval": supervisor.DefaultPollInterval,
	"readiness.probe_timeout": supervisor.DefaultProbeTimeout,
	"readiness.timeout":       supervisor.DefaultReadyTimeout,
	"readiness.resolve_wait":  2 * time.Second,

	"shutdown.grace": supervisor.DefaultStopGrace,

	"log.level":        "info",
	"log.format":       logger.FormatColor,
	"log.dir":          "",
	"log.stdout":       "",
	"log.stderr":       "",
	"log.max_size_mb":  logger.DefaultMaxSizeMB,
	"log.max_backups":  logger.DefaultMaxBackups,
	"log.max_age_days": logger.DefaultMaxAgeDays,
	"log.compress":     false,

	"server.enabled":   true,
	"server.listen":    "127.0.0.1:5174",
	"server.base_path": "/api",

	"metrics.enabled":        true,
	"metrics.usage_enabled":  true,
	"metrics.usage_interval": 15 * time.Second,
	"metrics.usage_history":  60,
}

// Load reads path (TOML) over the built-in defaults and applies TETHER_*
// environment overrides. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every field Load cannot enforce through types.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Backend.Command) == "" {
		errs = append(errs, errors.New("backend.command is required"))
	}
	if _, err := c.Address(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Probes(); err != nil {
		errs = append(errs, fmt.Errorf("readiness: %w", err))
	}
	for key, d := range map[string]time.Duration{
		"readiness.poll_interval": c.Readiness.PollInterval,
		"readiness.probe_timeout": c.Readiness.ProbeTimeout,
		"readiness.timeout":       c.Readiness.Timeout,
		"readiness.resolve_wait":  c.Readiness.ResolveWait,
		"shutdown.grace":          c.Shutdown.Grace,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case logger.FormatText, logger.FormatJSON, logger.FormatColor:
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text, json or color", c.Log.Format))
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen is required when the server is enabled"))
	}
	return errors.Join(errs...)
}

// Address is the fixed address the backend serves on.
func (c *Config) Address() (address.Address, error) {
	return address.New(c.Backend.Scheme, c.Backend.Host, c.Backend.Port)
}

// Probes builds the configured readiness probe.
func (c *Config) Probes() ([]probe.Probe, error) {
	p, err := probe.New(c.Readiness.Probe, probe.Options{
		HealthPath: c.Readiness.HealthPath,
		Command:    c.Readiness.Command,
		Insecure:   c.Readiness.Insecure,
	})
	if err != nil {
		return nil, err
	}
	return []probe.Probe{p}, nil
}

// Spec builds the launch spec. env_files are read in order and the inline
// env list is applied last, so it wins.
func (c *Config) Spec() (process.Spec, error) {
	var envs []string
	for _, p := range c.Backend.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return process.Spec{}, fmt.Errorf("backend.env_files: %w", err)
		}
		envs = append(envs, pairs...)
	}
	envs = append(envs, c.Backend.Env...)
	return process.Spec{
		Name:       c.Backend.Name,
		Command:    c.Backend.Command,
		Args:       c.Backend.Args,
		Shell:      c.Backend.Shell,
		LoginShell: c.Backend.LoginShell,
		WorkDir:    c.Backend.WorkDir,
		Env:        envs,
		Log:        c.Log,
	}, nil
}

// Supervisor assembles the supervisor configuration.
func (c *Config) Supervisor(log *slog.Logger) (supervisor.Config, error) {
	addr, err := c.Address()
	if err != nil {
		return supervisor.Config{}, err
	}
	probes, err := c.Probes()
	if err != nil {
		return supervisor.Config{}, err
	}
	spec, err := c.Spec()
	if err != nil {
		return supervisor.Config{}, err
	}
	usage := c.Metrics.Usage
	usage.Enabled = usage.Enabled && c.Metrics.Enabled
	return supervisor.Config{
		Spec:         spec,
		Address:      addr,
		Probes:       probes,
		PollInterval: c.Readiness.PollInterval,
		ProbeTimeout: c.Readiness.ProbeTimeout,
		ReadyTimeout: c.Readiness.Timeout,
		StopGrace:    c.Shutdown.Grace,
		Usage:        usage,
		Logger:       log,
	}, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE"
// entries in file order.
func LoadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if i := strings.IndexByte(line, '='); i > 0 {
			out = append(out, strings.TrimSpace(line[:i])+"="+strings.TrimSpace(line[i+1:]))
		}
	}
	return out, nil
}
