// Package activitywatch is a client for the ActivityWatch REST API: bucket
// discovery, category rules, categorized window queries, raw bucket events
// and the bucket used to persist the sync cursor.
package activitywatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:5600/api/0"
	DefaultTimeout = 30 * time.Second
)

// Client talks to one ActivityWatch server.
type Client struct {
	BaseURL    string
	Hostname   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient returns a client for baseURL using the local hostname for bucket
// discovery.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	host, _ := os.Hostname()
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Hostname:   host,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Logger:     logger,
	}
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("activitywatch %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// request sends a JSON request and returns the raw response body.
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("activitywatch %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading activitywatch response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// Info fetches the server info document; it doubles as a reachability check.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	body, err := c.request(ctx, http.MethodGet, "/info", nil)
	if err != nil {
		return nil, err
	}
	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing server info: %w", err)
	}
	return info, nil
}

// hostnames returns the full and short forms of the configured hostname.
func (c *Client) hostnames() []string {
	host := strings.TrimSpace(c.Hostname)
	if host == "" {
		return nil
	}
	out := []string{host}
	if short, _, ok := strings.Cut(host, "."); ok && short != "" {
		out = append(out, short)
	}
	return out
}

// formatTime renders t in the form the API accepts for query parameters and
// time periods.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
