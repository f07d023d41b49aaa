//go:build !windows

package process

import (
	"context"
	"os/exec"
)

// shellCommand runs script through /bin/sh. An absolute path keeps it
// working when the child environment overrides PATH.
func shellCommand(ctx context.Context, script string, login bool) *exec.Cmd {
	flag := "-c"
	if login {
		flag = "-lc"
	}
	// #nosec G204
	return exec.CommandContext(ctx, "/bin/sh", flag, script)
}

func trueCommand(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/true")
}
