package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/loykin/tether/internal/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func addrOf(t *testing.T, hostport string) address.Address {
	t.Helper()
	host, portStr, err := net.SplitHostPort(hostport)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	a, err := address.New("http", host, port)
	require.NoError(t, err)
	return a
}

// freeAddr returns an address nothing listens on.
func freeAddr(t *testing.T) address.Address {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := addrOf(t, ln.Addr().String())
	require.NoError(t, ln.Close())
	return a
}

func TestTCPReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, TCP{}.Ready(ctx, addrOf(t, ln.Addr().String())))
	assert.Equal(t, "tcp", TCP{}.Describe())
}

func TestTCPRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, TCP{}.Ready(ctx, freeAddr(t)))
}

func TestHTTPStatusClasses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	addr := addrOf(t, srv.Listener.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.NoError(t, HTTP{Path: "/ok"}.Ready(ctx, addr))
	assert.NoError(t, HTTP{Path: "moved"}.Ready(ctx, addr))
	err := HTTP{Path: "/down"}.Ready(ctx, addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, "http:/ok", HTTP{Path: "/ok"}.Describe())
	assert.Equal(t, "http:/", HTTP{}.Describe())
}

func TestHTTPRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, HTTP{}.Ready(ctx, freeAddr(t)))
}

func TestCommandProbe(t *testing.T) {
	requireUnix(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	addr := freeAddr(t)

	assert.NoError(t, Command{Command: "true"}.Ready(ctx, addr))

	err := Command{Command: "sh -c 'exit 3'"}.Ready(ctx, addr)
	assert.ErrorIs(t, err, ErrNotReady)

	err = Command{Command: `sh -c 'test "$TETHER_BACKEND_URL" = "` + addr.String() + `"'`}.Ready(ctx, addr)
	assert.NoError(t, err)

	err = Command{Command: "__definitely_not_exists__"}.Ready(ctx, addr)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.Equal(t, "cmd:true", Command{Command: "true"}.Describe())
}

func TestNew(t *testing.T) {
	p, err := New("", Options{})
	require.NoError(t, err)
	assert.IsType(t, TCP{}, p)

	p, err = New("HTTP", Options{HealthPath: "/health"})
	require.NoError(t, err)
	assert.Equal(t, HTTP{Path: "/health"}, p)

	_, err = New("command", Options{})
	assert.Error(t, err)

	p, err = New("command", Options{Command: "true"})
	require.NoError(t, err)
	assert.Equal(t, Command{Command: "true"}, p)

	_, err = New("grpc", Options{})
	assert.Error(t, err)
}
