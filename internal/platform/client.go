// Package platform is a client for the hosting platform API: sites,
// environments and the asynchronous workflows that converge them.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public platform API.
const DefaultBaseURL = "https://terminus.pantheon.io/api"

// DefaultSSHHostSuffix is the domain of git and sftp endpoints.
const DefaultSSHHostSuffix = "drush.in"

// Config holds configuration for creating a platform API Client.
type Config struct {
	// BaseURL is the root URL for API requests.
	BaseURL string

	// MachineToken is exchanged for a session on first use.
	MachineToken string

	// SSHHostSuffix is the domain used to build git and sftp hosts.
	SSHHostSuffix string

	// HTTPClient is used for all HTTP requests.
	HTTPClient *http.Client

	// Logger is used for structured logging.
	Logger *zap.Logger
}

// Client is a typed platform API client.
type Client struct {
	baseURL      string
	machineToken string
	hostSuffix   string
	httpClient   *http.Client
	logger       *zap.Logger

	mu      sync.Mutex
	session string
	siteIDs map[string]string
}

// New creates a platform API client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid platform base url: %w", err)
	}

	c := &Client{
		baseURL:      strings.TrimRight(base, "/"),
		machineToken: cfg.MachineToken,
		hostSuffix:   cfg.SSHHostSuffix,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
		siteIDs:      make(map[string]string),
	}
	if c.hostSuffix == "" {
		c.hostSuffix = DefaultSSHHostSuffix
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// Authenticate exchanges the machine token for a session token. It is
// called lazily by every request and only talks to the API once.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	has := c.session != ""
	c.mu.Unlock()
	if has {
		return nil
	}
	if c.machineToken == "" {
		return fmt.Errorf("platform: no machine token configured")
	}

	var resp struct {
		Session string `json:"session"`
		UserID  string `json:"user_id"`
	}
	body := map[string]string{"machine_token": c.machineToken, "client": "multidev"}
	if err := c.send(ctx, http.MethodPost, "/authorize/machine-token", body, "", &resp); err != nil {
		return fmt.Errorf("authenticating with machine token: %w", err)
	}
	if resp.Session == "" {
		return fmt.Errorf("platform: authentication returned no session")
	}

	c.mu.Lock()
	c.session = resp.Session
	c.mu.Unlock()

	c.logger.Debug("Authenticated with platform", zap.String("user_id", resp.UserID))
	return nil
}

// do sends an authenticated request.
func (c *Client) do(ctx context.Context, method, path string, body, v any) error {
	if err := c.Authenticate(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	return c.send(ctx, method, path, body, session, v)
}

func (c *Client) send(ctx context.Context, method, path string, body any, session string, v any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: extractError(resp.Body)}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
