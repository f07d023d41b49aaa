package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/loykin/tether/internal/address"
	"github.com/loykin/tether/internal/process"
)

// Command runs a command that should succeed once the backend is serving.
// The backend address is exported to it as TETHER_BACKEND_URL and TETHER_BACKEND_ADDR.
type Command struct{ Command string }

func (c Command) Ready(ctx context.Context, addr address.Address) error {
	cmd := process.ShellAwareCommand(ctx, c.Command)
	cmd.Env = append(cmd.Environ(),
		"TETHER_BACKEND_URL="+addr.String(),
		"TETHER_BACKEND_ADDR="+addr.HostPort(),
	)
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("%w: %s exited %d", ErrNotReady, c.Command, ee.ExitCode())
	}
	return err
}

func (c Command) Describe() string { return "cmd:" + c.Command }
