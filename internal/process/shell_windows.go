//go:build windows

package process

import (
	"context"
	"os/exec"
)

// shellCommand runs script through cmd.exe; login has no meaning here.
func shellCommand(ctx context.Context, script string, _ bool) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "cmd", "/C", script)
}

func trueCommand(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd", "/C", "rem")
}
