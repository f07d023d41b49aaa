package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/tether/internal/address"
)

// Probe is a strategy that determines whether the backend accepts clients.
// Implementations must be safe for concurrent use and must return promptly
// once ctx is done.
type Probe interface {
	// Ready returns nil when the backend at addr is serving.
	Ready(ctx context.Context, addr address.Address) error
	// Describe returns a human-readable description of the probe.
	Describe() string
}

// Probe kinds accepted by New.
const (
	KindTCP     = "tcp"
	KindHTTP    = "http"
	KindCommand = "command"
)

// ErrNotReady is wrapped by probes that reached the backend but judged it not yet serving.
var ErrNotReady = errors.New("backend not ready")

// Options carries per-kind settings for New.
type Options struct {
	HealthPath string
	Command    string
	Insecure   bool
}

// New builds a probe from its config name.
func New(kind string, opts Options) (Probe, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindTCP:
		return TCP{}, nil
	case KindHTTP:
		return HTTP{Path: opts.HealthPath, Insecure: opts.Insecure}, nil
	case KindCommand:
		if strings.TrimSpace(opts.Command) == "" {
			return nil, fmt.Errorf("probe command requires command")
		}
		return Command{Command: opts.Command}, nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q", kind)
	}
}
