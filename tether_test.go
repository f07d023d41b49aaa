package tether

import (
	"context"
		"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/loykin/tether/internal/testhelper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testhelper.MaybeRunBackend()
	os.Exit(m.Run())
}

func helperConfig(t *testing.T, mode func(hostport string) string) *Config {
	t.Helper()
	c, err := LoadConfig("")
	require.NoError(t, err)
	port, err := testhelper.FreePort()
	require.NoError(t, err)
	exe, args := testhelper.Command()
	c.Backend.Command = exe
	c.Backend.Args = args
	c.Backend.Port = port
	c.Backend.Env = []string{testhelper.Env(mode(c.Backend.Host + ":" + strconv.Itoa(port)))}
	c.Readiness.PollInterval = 20 * time.Millisecond
	c.Readiness.Timeout = 5 * time.Second
	c.Readiness.ResolveWait = 200 * time.Millisecond
	c.Shutdown.Grace = time.Second
	c.Metrics.Enabled = false
	c.Server.Listen = "127.0.0.1:0"
	return c
}

func TestShellLaunchAndResolve(t *testing.T) {
	c := helperConfig(t, func(hp string) string { return testhelper.ModeListen(hp, 50*time.Millisecond) })
	sh, err := New(c, nil)
	require.NoError(t, err)
	defer func() { _ = sh.Close() }()

	assert.Equal(t, NotStarted, sh.State())
	_, err = sh.BackendURL(context.Background())
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, sh.Launch(context.Background()))
	assert.Equal(t, Ready, sh.State())

	url, err := sh.BackendURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(c.Backend.Port), url)

	addr, err := sh.ResolveAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.Backend.Port, addr.Port)

	require.NoError(t, sh.Close())
	assert.Equal(t, Stopped, sh.State())
	require.NoError(t, sh.Close())
}

func TestShellLaunchEarlyExit(t *testing.T) {
	c := helperConfig(t, func(string) string { return testhelper.ModeExit(2) })
	sh, err := New(c, nil)
	require.NoError(t, err)
	defer func() { _ = sh.Close() }()

	err = sh.Launch(context.Background())
	var ee *EarlyExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.Code)
	assert.Equal(t, Failed, sh.State())

	_, err = sh.BackendURL(context.Background())
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Failed, ue.State)
}

func TestShellSpawnFailure(t *testing.T) {
	c := helperConfig(t, func(string) string { return testhelper.ModeSleep })
	c.Backend.Command = "/nonexistent/tether-backend"
	c.Backend.Args = nil
	sh, err := New(c, nil)
	require.NoError(t, err)

	err = sh.Start(context.Background())
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Failed, sh.Status().State)
	assert.True(t, errors.Is(sh.Start(context.Background()), ErrAlreadyStarted))
}

func TestShellHTTPServer(t *testing.T) {
	c := helperConfig(t, func(hp string) string { return testhelper.ModeListen(hp, 0) })
	sh, err := New(c, nil)
	require.NoError(t, err)
	defer func() { _ = sh.Close() }()
	require.NoError(t, sh.Launch(context.Background()))

	srv, err := sh.NewHTTPServer()
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	resp, err := http.Get("http://" + srv.Addr + c.Server.BasePath + "/backend_url")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http://127.0.0.1:"+strconv.Itoa(c.Backend.Port))
}

func TestRegisterMetrics(t *testing.T) {
	r := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(r))
	require.NoError(t, RegisterMetrics(r))
}
