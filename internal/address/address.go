package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Defaults for the backend the desktop shell launches.
const (
	DefaultScheme = "http"
	DefaultHost   = "127.0.0.1"
	DefaultPort   = 5173
)

// Address is where the supervised backend can be reached once ready.
// It is derived from configuration, never discovered from the child.
type Address struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// New validates and normalizes an address. Empty scheme and host fall back
// to the defaults; the port is required.
func New(scheme, host string, port int) (Address, error) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		scheme = DefaultScheme
	}
	if scheme != "http" && scheme != "https" {
		return Address{}, fmt.Errorf("unsupported scheme %q", scheme)
	}
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	if strings.ContainsAny(host, "/ ") {
		return Address{}, fmt.Errorf("invalid host %q", host)
	}
	if port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return Address{Scheme: scheme, Host: host, Port: port}, nil
}

// HostPort returns host:port suitable for dialing.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// String returns the base URL, e.g. http://127.0.0.1:5173.
func (a Address) String() string {
	return a.Scheme + "://" + a.HostPort()
}

// IsZero reports whether a is the zero value.
func (a Address) IsZero() bool { return a == Address{} }
