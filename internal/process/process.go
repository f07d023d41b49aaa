package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// KillReapTimeout bounds how long Stop waits for the process to be reaped
// after a forced kill.
const KillReapTimeout = 2 * time.Second

// ErrNotReaped is returned by Stop when the process survived a forced kill
// past KillReapTimeout.
var ErrNotReaped = errors.New("process not reaped after kill")

// OutputDrainDelay bounds how long the reap waits for output copying once
// the process itself has exited. Descendants that inherited the pipes can
// keep them open indefinitely.
const OutputDrainDelay = 250 * time.Millisecond

// Process is a started backend. One goroutine owns cmd.Wait; everyone else
// observes the exit through Done.
type Process struct {
	spec Spec
	cmd  *exec.Cmd
	done chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	exitedAt  time.Time
	exitErr   error
	exitCode  int
	closers   []io.Closer
}

// Start launches spec with the given environment (nil inherits the parent's).
// Stdout/stderr go to the rotated files from spec.Log, or to the null
// device, never to the parent's own streams.
func Start(spec Spec, env []string) (*Process, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	configureSysProcAttr(cmd)

	p := &Process{spec: spec, cmd: cmd, done: make(chan struct{}), exitCode: -1}
	if spec.Log.File.Enabled() {
		if spec.Log.File.Dir != "" {
			if err := os.MkdirAll(spec.Log.File.Dir, 0o750); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		outW, errW, err := spec.Log.ProcessWriters(spec.Name)
		if err != nil {
			return nil, err
		}
		if outW != nil {
			cmd.Stdout = outW
			p.closers = append(p.closers, outW)
		}
		if errW != nil {
			cmd.Stderr = errW
			p.closers = append(p.closers, errW)
		}
		cmd.WaitDelay = OutputDrainDelay
	}
	// nil Stdout/Stderr are connected to the null device by os/exec.

	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return nil, err
	}
	p.startedAt = time.Now()
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	code := -1
	if ps := p.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
	}
	p.mu.Lock()
	p.exitErr = err
	p.exitCode = code
	p.exitedAt = time.Now()
	p.mu.Unlock()
	p.closeWriters()
	close(p.done)
}

func (p *Process) closeWriters() {
	p.mu.Lock()
	cs := p.closers
	p.closers = nil
	p.mu.Unlock()
	for _, c := range cs {
		_ = c.Close()
	}
}

// Pid returns the OS process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Spec returns the spec the process was started with.
func (p *Process) Spec() Spec { return p.spec }

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether Done is closed.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Exit returns the exit code (-1 when killed by a signal or still running)
// and the error from cmd.Wait.
func (p *Process) Exit() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exitErr
}

// StartedAt returns when the process was started.
func (p *Process) StartedAt() time.Time { return p.startedAt }

// ExitedAt returns when the process was reaped, or the zero time.
func (p *Process) ExitedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitedAt
}

// Stop asks the process group to terminate, waits up to grace, then kills
// it and waits at most KillReapTimeout for the reap. forced reports whether
// the kill was needed.
func (p *Process) Stop(grace time.Duration) (forced bool, err error) {
	if p.Exited() {
		return false, nil
	}
	if terr := terminate(p.cmd.Process); terr == nil && grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-p.done:
			t.Stop()
			return false, nil
		case <-t.C:
		}
	}
	if p.Exited() {
		return false, nil
	}
	if err := kill(p.cmd.Process); err != nil && !p.Exited() {
		return true, fmt.Errorf("kill pid %d: %w", p.Pid(), err)
	}
	t := time.NewTimer(KillReapTimeout)
	defer t.Stop()
	select {
	case <-p.done:
		return true, nil
	case <-t.C:
		return true, ErrNotReaped
	}
}
