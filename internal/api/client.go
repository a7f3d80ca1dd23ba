package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DaewiLF/MinerIA/internal/session"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

const defaultTimeout = 60 * time.Second

// Root returns the API root for a backend base URL ("<base>/api").
func Root(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api"
}

// Client talks to the MinerIA backend. Every request goes through an
// AuthTransport, so callers never build Authorization headers themselves.
type Client struct {
	host       string
	baseURL    string
	transport  *AuthTransport
	httpClient *http.Client
}

// New creates a Client for the backend at baseURL whose requests carry the
// bearer token from sess. A timeout <= 0 uses the default of 60s.
func New(baseURL string, sess session.Reader, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	t := &AuthTransport{Session: sess}
	return &Client{
		host:      strings.TrimRight(baseURL, "/"),
		baseURL:   Root(baseURL),
		transport: t,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
	}
}

// OnUnauthorized installs a hook run whenever the backend answers 401.
// No hook is installed by default: a rejected token is not cleared.
func (c *Client) OnUnauthorized(fn func()) {
	c.transport.OnUnauthorized = fn
}

// ImageURL resolves a server-relative image path against the backend host.
func (c *Client) ImageURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.host + path
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, "")
}

func (c *Client) postJSON(ctx context.Context, path string, v any) (*http.Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json")
}

// decodeJSON closes resp.Body and decodes it into v, turning non-2xx
// responses into a *StatusError.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
