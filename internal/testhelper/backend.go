// Package testhelper lets tests re-execute their own binary as a stand-in
// backend, so lifecycle tests need neither a shell nor python.
package testhelper

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// EnvMode selects the backend behaviour when the test binary is re-executed.
const EnvMode = "TETHER_TEST_BACKEND"

// Backend modes.
const (
	ModeSleep      = "sleep"       // run until signalled
	ModeIgnoreTerm = "ignore-term" // ignore SIGTERM, run until killed
)

// ModeExit exits immediately with code.
func ModeExit(code int) string { return "exit:" + strconv.Itoa(code) }

// ModeListen serves HTTP 200 on hostport after delay.
func ModeListen(hostport string, delay time.Duration) string {
	return fmt.Sprintf("listen:%d:%s", delay.Milliseconds(), hostport)
}

// ModeServeThenExit serves HTTP 200 on hostport right away and exits with
// code after lifetime.
func ModeServeThenExit(hostport string, lifetime time.Duration, code int) string {
	return fmt.Sprintf("serve-exit:%d:%d:%s", lifetime.Milliseconds(), code, hostport)
}

// MaybeRunBackend turns the process into a test backend when EnvMode is set.
// Call it first thing in TestMain.
func MaybeRunBackend() {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		return
	}
	os.Exit(runBackend(mode))
}

// Command returns the executable and argv that re-run the test binary.
func Command() (string, []string) {
	return os.Args[0], []string{"-test.run=^$"}
}

// Env returns the environment entry selecting mode.
func Env(mode string) string { return EnvMode + "=" + mode }

func runBackend(mode string) int {
	kind, arg, _ := strings.Cut(mode, ":")
	switch kind {
	case ModeSleep:
		time.Sleep(time.Hour)
		return 0
	case ModeIgnoreTerm:
		signal.Ignore(syscall.SIGTERM, os.Interrupt)
		time.Sleep(time.Hour)
		return 0
	case "exit":
		code, err := strconv.Atoi(arg)
		if err != nil {
			return 99
		}
		return code
	case "listen":
		ms, hostport, _ := strings.Cut(arg, ":")
		delay, err := strconv.Atoi(ms)
		if err != nil {
			return 99
		}
		time.Sleep(time.Duration(delay) * time.Millisecond)
		ln, err := net.Listen("tcp", hostport)
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "listen:", err)
			return 98
		}
		_ = serve(ln)
		return 0
	case "serve-exit":
		parts := strings.SplitN(arg, ":", 3)
		if len(parts) != 3 {
			return 99
		}
		ms, err1 := strconv.Atoi(parts[0])
		code, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 99
		}
		ln, err := net.Listen("tcp", parts[2])
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "listen:", err)
			return 98
		}
		go func() { _ = serve(ln) }()
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return code
	default:
		_, _ = fmt.Fprintln(os.Stderr, "unknown backend mode", mode)
		return 97
	}
}

func serve(ln net.Listener) error {
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}),
		ReadHeaderTimeout: time.Second,
	}
	return srv.Serve(ln)
}

// FreePort returns a loopback port nothing is listening on right now.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
