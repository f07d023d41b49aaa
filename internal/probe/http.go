package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loykin/tether/internal/address"
)

// HTTP is ready when GET {addr}{Path} answers with a 2xx or 3xx status.
// Redirects are not followed; a redirect already proves the server is up.
type HTTP struct {
	Path     string
	Insecure bool // skip TLS verification for https backends with self-signed certs
}

func (h HTTP) url(addr address.Address) string {
	p := strings.TrimSpace(h.Path)
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return addr.String() + p
}

func (h HTTP) client() *http.Client {
	tr := &http.Transport{DisableKeepAlives: true}
	if h.Insecure {
		// #nosec G402 -- opt-in for loopback backends with self-signed certificates
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (h HTTP) Ready(ctx context.Context, addr address.Address) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url(addr), nil)
	if err != nil {
		return err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	return fmt.Errorf("%w: status %d", ErrNotReady, resp.StatusCode)
}

func (h HTTP) Describe() string {
	p := h.Path
	if p == "" {
		p = "/"
	}
	return "http:" + p
}
