package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/tether/internal/logger"
	"github.com/loykin/tether/internal/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testhelper.MaybeRunBackend()
	os.Exit(m.Run())
}

func helperSpec(name, mode string) (Spec, []string) {
	exe, args := testhelper.Command()
	spec := Spec{Name: name, Command: exe, Args: args}
	return spec, append(os.Environ(), testhelper.Env(mode))
}

func waitDone(t *testing.T, p *Process, d time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(d):
		t.Fatalf("process %d did not exit within %s", p.Pid(), d)
	}
}

func TestStartRecordsExitCode(t *testing.T) {
	spec, env := helperSpec("exit3", testhelper.ModeExit(3))
	p, err := Start(spec, env)
	require.NoError(t, err)
	require.Greater(t, p.Pid(), 0)
	assert.False(t, p.StartedAt().IsZero())

	waitDone(t, p, 5*time.Second)
	code, werr := p.Exit()
	assert.Equal(t, 3, code)
	assert.Error(t, werr)
	assert.True(t, p.Exited())
	assert.False(t, p.ExitedAt().IsZero())
}

func TestStartSpawnFailure(t *testing.T) {
	spec := Spec{Name: "missing", Command: filepath.Join(t.TempDir(), "no-such-binary"), Args: []string{"x"}}
	p, err := Start(spec, nil)
	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestStartWorkDirMissing(t *testing.T) {
	spec, env := helperSpec("wd", testhelper.ModeSleep)
	spec.WorkDir = filepath.Join(t.TempDir(), "absent")
	_, err := Start(spec, env)
	assert.Error(t, err)
}

func TestStopGraceful(t *testing.T) {
	spec, env := helperSpec("sleeper", testhelper.ModeSleep)
	p, err := Start(spec, env)
	require.NoError(t, err)

	start := time.Now()
	forced, err := p.Stop(2 * time.Second)
	require.NoError(t, err)
	assert.True(t, p.Exited())
	if !forced {
		assert.Less(t, time.Since(start), 2*time.Second)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	requireUnix(t)
	spec, env := helperSpec("stubborn", testhelper.ModeIgnoreTerm)
	p, err := Start(spec, env)
	require.NoError(t, err)
	// give the child time to install its signal handler
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	forced, err := p.Stop(150 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, forced)
	assert.True(t, p.Exited())
	assert.Less(t, time.Since(start), 150*time.Millisecond+KillReapTimeout)
	code, _ := p.Exit()
	assert.Equal(t, -1, code)
}

func TestStopAfterExitIsNoop(t *testing.T) {
	spec, env := helperSpec("quick", testhelper.ModeExit(0))
	p, err := Start(spec, env)
	require.NoError(t, err)
	waitDone(t, p, 5*time.Second)

	forced, err := p.Stop(time.Second)
	assert.NoError(t, err)
	assert.False(t, forced)
	code, werr := p.Exit()
	assert.Equal(t, 0, code)
	assert.NoError(t, werr)
}

func TestStartWritesRotatedLogs(t *testing.T) {
	dir := t.TempDir()
	spec, env := helperSpec("noisy", "bogus-mode")
	spec.Log = logger.Config{File: logger.FileConfig{Dir: filepath.Join(dir, "logs")}}
	p, err := Start(spec, env)
	require.NoError(t, err)
	waitDone(t, p, 5*time.Second)

	code, _ := p.Exit()
	assert.Equal(t, 97, code)
	b, err := os.ReadFile(filepath.Join(dir, "logs", "noisy.stderr.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "unknown backend mode"), string(b))
}

func TestSampleSelf(t *testing.T) {
	u, err := Sample(os.Getpid())
	if err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	assert.Greater(t, u.RSSBytes, uint64(0))
}

func TestExitObservedWhileDescendantHoldsLogPipe(t *testing.T) {
	requireUnix(t)
	spec := Spec{
		Name:    "forker",
		Command: "sleep 3 & exit 1",
		Log:     logger.Config{File: logger.FileConfig{Dir: t.TempDir()}},
	}
	p, err := Start(spec, nil)
	require.NoError(t, err)
	// the backgrounded sleep shares the process group
	t.Cleanup(func() { _ = kill(p.cmd.Process) })

	start := time.Now()
	waitDone(t, p, 2*time.Second)
	assert.Less(t, time.Since(start), time.Second)
	code, _ := p.Exit()
	assert.Equal(t, 1, code)
}
