package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/tether/internal/locator"
	"github.com/loykin/tether/internal/metrics"
	"github.com/loykin/tether/internal/supervisor"
)

// StatusSource is the read-only supervisor view the router reports.
type StatusSource interface {
	Status() supervisor.Status
	UsageHistory() []metrics.UsageSample
}

// Router provides embeddable HTTP handlers that let the UI shell find the
// backend. Endpoints:
//
//	GET {basePath}/backend_url  200 {"url"}, 202 while starting, 503 when unavailable
//	GET {basePath}/state        supervisor status snapshot
//	GET {basePath}/usage        retained resource samples, oldest first
//	GET /metrics                prometheus exposition, when enabled
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	loc      *locator.Locator
	src      StatusSource
	basePath string
	metrics  http.Handler
	log      *slog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option { return func(r *Router) { r.metrics = h } }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.log = l } }

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/backend_url and /api/state.
func NewRouter(loc *locator.Locator, src StatusSource, basePath string, opts ...Option) *Router {
	r := &Router{loc: loc, src: src, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// BasePath returns the sanitized base path.
func (r *Router) BasePath() string { return r.basePath }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestLogger(r.log))
	group := g.Group(r.basePath)
	group.GET("/backend_url", r.handleBackendURL)
	group.GET("/state", r.handleState)
	group.GET("/usage", r.handleUsage)
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer binds addr and serves the router on it in the background.
// Bind errors are returned; serve errors after that are logged.
func NewServer(addr string, r *Router) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("control server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error  string `json:"error"`
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type urlResp struct {
	URL string `json:"url"`
}

func (r *Router) handleBackendURL(c *gin.Context) {
	u, err := r.loc.BackendURL(c.Request.Context())
	if err == nil {
		writeJSON(c, http.StatusOK, urlResp{URL: u})
		return
	}
	var ue *locator.UnavailableError
	switch {
	case errors.Is(err, locator.ErrStillStarting):
		writeJSON(c, http.StatusAccepted, errorResp{Error: err.Error(), State: supervisor.Starting.String()})
	case errors.As(err, &ue):
		resp := errorResp{Error: err.Error(), State: ue.State.String()}
		if ue.Reason != nil {
			resp.Reason = ue.Reason.Error()
		}
		writeJSON(c, http.StatusServiceUnavailable, resp)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleState(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.src.Status())
}

func (r *Router) handleUsage(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.src.UsageHistory())
}
