// Package template generates starter tether.toml files for common backends.
package template

import (
	"fmt"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// TemplateType represents the kind of backend to generate a config for.
type TemplateType string

const (
	TypePython  TemplateType = "python"
	TypeFastAPI TemplateType = "fastapi"
	TypeNode    TemplateType = "node"
	TypeBinary  TemplateType = "binary"
	TypeSimple  TemplateType = "simple"
)

// ConfigTemplate mirrors the sections of tether.toml a starter file sets.
// Durations are strings so the file reads the way people write it.
type ConfigTemplate struct {
	Backend   BackendTemplate   `toml:"backend"`
	Readiness ReadinessTemplate `toml:"readiness"`
	Shutdown  ShutdownTemplate  `toml:"shutdown"`
	Log       LogTemplate       `toml:"log"`
	Server    ServerTemplate    `toml:"server"`
}

type BackendTemplate struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	WorkDir string   `toml:"work_dir,omitempty"`
	Env     []string `toml:"env,omitempty"`
	Host    string   `toml:"host"`
	Port    int      `toml:"port"`
}

type ReadinessTemplate struct {
	Probe        string `toml:"probe"`
	HealthPath   string `toml:"health_path,omitempty"`
	PollInterval string `toml:"poll_interval"`
	Timeout      string `toml:"timeout"`
}

type ShutdownTemplate struct {
	Grace string `toml:"grace"`
}

type LogTemplate struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir,omitempty"`
}

type ServerTemplate struct {
	Listen   string `toml:"listen"`
	BasePath string `toml:"base_path"`
}

// Generator provides template generation functionality
type Generator struct{}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a config template for the given backend type, serving on port.
// port <= 0 uses 5173.
func (g *Generator) Generate(templateType TemplateType, name string, port int) (*ConfigTemplate, error) {
	if port <= 0 {
		port = 5173
	}
	if name == "" {
		name = "backend"
	}
	var b BackendTemplate
	var r ReadinessTemplate
	switch templateType {
	case TypePython, TypeFastAPI:
		b = BackendTemplate{
			Command: "python -m uvicorn backend.app:app --host 127.0.0.1 --port " + strconv.Itoa(port),
			Env:     []string{"PYTHONUNBUFFERED=1"},
		}
		r = ReadinessTemplate{Probe: "tcp"}
	case TypeNode:
		b = BackendTemplate{
			Command: "node server.js",
			Env:     []string{"PORT=" + strconv.Itoa(port), "NODE_ENV=production"},
		}
		r = ReadinessTemplate{Probe: "http", HealthPath: "/health"}
	case TypeBinary:
		b = BackendTemplate{
			Command: "./backend --listen 127.0.0.1:" + strconv.Itoa(port),
			WorkDir: ".",
		}
		r = ReadinessTemplate{Probe: "http", HealthPath: "/healthz"}
	case TypeSimple:
		b = BackendTemplate{Command: "python -m http.server " + strconv.Itoa(port) + " --bind 127.0.0.1"}
		r = ReadinessTemplate{Probe: "tcp"}
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: python, node, binary, simple)", templateType)
	}
	b.Name = name
	b.Host = "127.0.0.1"
	b.Port = port
	r.PollInterval = "100ms"
	r.Timeout = "30s"
	return &ConfigTemplate{
		Backend:   b,
		Readiness: r,
		Shutdown:  ShutdownTemplate{Grace: "5s"},
		Log:       LogTemplate{Level: "info", Dir: "logs"},
		Server:    ServerTemplate{Listen: "127.0.0.1:5174", BasePath: "/api"},
	}, nil
}

// GenerateTOML renders the template as a tether.toml document.
func (g *Generator) GenerateTOML(templateType TemplateType, name string, port int) ([]byte, error) {
	tpl, err := g.Generate(templateType, name, port)
	if err != nil {
		return nil, err
	}
	out, err := toml.Marshal(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return out, nil
}

// GetSupportedTypes returns a list of all supported template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypePython),
		string(TypeNode),
		string(TypeBinary),
		string(TypeSimple),
	}
}
