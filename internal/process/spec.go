package process

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/loykin/tether/internal/logger"
)

// shellMeta are the characters that force a command line through the platform shell.
const shellMeta = "|&;<>*?`$\"'(){}[]~%"

// Spec describes how to launch the backend.
type Spec struct {
	Name       string        `json:"name"`
	Command    string        `json:"command"`     // command line, or the executable when Args is set
	Args       []string      `json:"args"`        // explicit argv; disables shell handling
	Shell      bool          `json:"shell"`       // always run Command through the platform shell
	LoginShell bool          `json:"login_shell"` // Unix only: sh -lc, so profile PATH is visible
	WorkDir    string        `json:"work_dir"`
	Env        []string      `json:"env"`
	Log        logger.Config `json:"log"`
}

// BuildCommand constructs the *exec.Cmd for the backend.
// Explicit Args are exec'd as-is. Otherwise the command line goes through
// the platform shell when requested or when it needs shell parsing, and is
// split on whitespace when it does not.
func (s *Spec) BuildCommand() *exec.Cmd {
	if len(s.Args) > 0 {
		// #nosec G204 -- the backend command is operator configuration
		return exec.Command(s.Command, s.Args...)
	}
	cmdStr := strings.TrimSpace(s.Command)
	if s.Shell || s.LoginShell {
		return shellCommand(context.Background(), cmdStr, s.LoginShell)
	}
	return ShellAwareCommand(context.Background(), cmdStr)
}

// ShellAwareCommand builds a command for cmdStr without invoking a shell
// unless it contains shell metacharacters. An explicit "sh -c '<script>'"
// prefix is honored without wrapping it in a second shell.
func ShellAwareCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return trueCommand(ctx)
	}
	if _, script, ok := parseExplicitShell(cmdStr); ok {
		return shellCommand(ctx, script, false)
	}
	if strings.ContainsAny(cmdStr, shellMeta) {
		return shellCommand(ctx, cmdStr, false)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.CommandContext(ctx, parts[0], parts[1:]...)
}

// parseExplicitShell detects "sh -c <ARG>" or "/bin/sh -c <ARG>" at the start
// of cmdStr and returns the shell and its script. One pair of surrounding
// quotes is stripped so the shell parses the script itself.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := strings.TrimSpace(trim[len(p):])
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return strings.Fields(p)[0], after, true
	}
	return "", "", false
}

// Validate checks the fields Start depends on.
func (s *Spec) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("backend requires name")
	}
	if strings.ContainsAny(name, " \t\n\r/\\<>:\"|?*") || strings.Contains(name, "..") {
		return fmt.Errorf("backend name %q contains invalid characters", name)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("backend %q requires command", name)
	}
	for i, kv := range s.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("backend %q: env[%d] %q must be KEY=VALUE", name, i, kv)
		}
	}
	return nil
}
