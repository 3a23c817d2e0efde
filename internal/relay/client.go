// Package relay sends recognized commands to the voice-control backend.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voicecmd/internal/config"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const maxErrorBody = 4 << 10

// CommandRequest is the body posted to the backend.
type CommandRequest struct {
	Command string `json:"command"`
}

// ServerResponse is the backend's reply. Message is optional.
type ServerResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// HTTPError is a non-2xx reply.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! Status: %d", e.StatusCode)
}

// TransportError is a request that never produced a usable reply: the
// connection failed or the body was not valid JSON.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Client posts commands to one endpoint. It never retries.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *logrus.Logger
}

// New joins baseURL and path into the endpoint. A zero timeout waits for
// the backend indefinitely.
func New(baseURL, path string, timeout time.Duration, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("backend url is empty")
	}
	if path == "" {
		path = config.DefaultBackendPath
	}
	endpoint, err := url.JoinPath(baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

// NewFromConfig reads the [backend] section.
func NewFromConfig(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	return New(cfg.Backend.URL, cfg.Backend.Path, cfg.BackendTimeout(), logger)
}

// Endpoint is the URL commands are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// Send posts the command and returns the backend's message.
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	body, err := json.Marshal(CommandRequest{Command: command})
	if err != nil {
		return "", fmt.Errorf("marshal command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.Debugf("POST %s -> %d (%s)", c.endpoint, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out ServerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return out.Message, nil
}
