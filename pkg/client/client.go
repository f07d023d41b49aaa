package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrStarting is returned by BackendURL while the backend is still starting.
var ErrStarting = errors.New("backend still starting")

// UnavailableError is returned by BackendURL when the backend failed or stopped.
type UnavailableError struct {
	State  string
	Reason string
}

func (e *UnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("backend unavailable (%s)", e.State)
	}
	return fmt.Sprintf("backend unavailable (%s): %s", e.State, e.Reason)
}

// Client talks to a tether host's control surface.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:5174/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new tether API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the host is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/state", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Host unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Host reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// BackendURL asks the host where the backend serves. It returns ErrStarting
// while the backend is starting and *UnavailableError when it failed or stopped.
func (c *Client) BackendURL(ctx context.Context) (string, error) {
	var out urlResponse
	resp, err := c.get(ctx, "/backend_url", &out)
	if err != nil {
		return "", err
	}
	switch resp.code {
	case http.StatusOK:
		return out.URL, nil
	case http.StatusAccepted:
		return "", ErrStarting
	case http.StatusServiceUnavailable:
		if resp.err.State == "" {
			return "", fmt.Errorf("API error: %s", resp.err.Error)
		}
		return "", &UnavailableError{State: resp.err.State, Reason: resp.err.Reason}
	default:
		return "", resp.apiError()
	}
}

// State fetches the supervisor status.
func (c *Client) State(ctx context.Context) (Status, error) {
	var st Status
	resp, err := c.get(ctx, "/state", &st)
	if err != nil {
		return Status{}, err
	}
	if resp.code != http.StatusOK {
		return Status{}, resp.apiError()
	}
	return st, nil
}

// Usage fetches the retained resource samples.
func (c *Client) Usage(ctx context.Context) ([]UsageInfo, error) {
	var out []UsageInfo
	resp, err := c.get(ctx, "/usage", &out)
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.apiError()
	}
	return out, nil
}

type response struct {
	code int
	err  ErrorResponse
}

func (r response) apiError() error {
	if r.err.Error == "" {
		return fmt.Errorf("HTTP %d", r.code)
	}
	return fmt.Errorf("API error: %s", r.err.Error)
}

// get decodes 2xx bodies into okOut (except 202) and error bodies into the
// returned response.
func (c *Client) get(ctx context.Context, path string, okOut any) (response, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return response{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	r := response{code: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(okOut); err != nil {
			return r, fmt.Errorf("decode response: %w", err)
		}
		return r, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&r.err); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
	}
	return r, nil
}
