// Package client is the HTTP client for a running warden instance. It is the
// transport used by the CLI subcommands and is usable by other Go programs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string        // e.g. http://localhost:3000
	Token   string        // bearer token, empty when auth is disabled
	Timeout time.Duration // per-request timeout
}

// DefaultConfig targets a local instance on the default port.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:3000",
		Timeout: 10 * time.Second,
	}
}

// Client talks to the warden control API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// IsReachable reports whether the daemon answers on its API.
func (c *Client) IsReachable(ctx context.Context) bool {
	var st Status
	return c.getJSON(ctx, "/api/status", &st) == nil
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.getJSON(ctx, "/api/status", &st)
	return st, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := c.getJSON(ctx, "/api/stats", &st)
	return st, err
}

func (c *Client) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	path := "/api/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var logs []LogEntry
	err := c.getJSON(ctx, path, &logs)
	return logs, err
}

func (c *Client) FullState(ctx context.Context) (FullState, error) {
	var st FullState
	err := c.getJSON(ctx, "/api/state", &st)
	return st, err
}

func (c *Client) Backups(ctx context.Context) ([]BackupInfo, error) {
	var infos []BackupInfo
	err := c.getJSON(ctx, "/api/backups", &infos)
	return infos, err
}

func (c *Client) CreateBackup(ctx context.Context) (Result, error) {
	return c.doResult(ctx, http.MethodPost, "/api/backups", nil)
}

func (c *Client) DeleteBackup(ctx context.Context, name string) (Result, error) {
	return c.doResult(ctx, http.MethodDelete, "/api/backups/"+url.PathEscape(name), nil)
}

// DownloadBackup streams the named archive into w.
func (c *Client) DownloadBackup(ctx context.Context, name string, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/backups/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) Restart(ctx context.Context) (Result, error) {
	return c.doResult(ctx, http.MethodPost, "/api/restart", nil)
}

func (c *Client) Stop(ctx context.Context) (Result, error) {
	return c.doResult(ctx, http.MethodPost, "/api/stop", nil)
}

func (c *Client) Send(ctx context.Context, command string) (Result, error) {
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return Result{}, err
	}
	return c.doResult(ctx, http.MethodPost, "/api/command", body)
}

// GetConfig returns the server's live configuration as raw JSON so callers
// can render or edit it without this package tracking every field.
func (c *Client) GetConfig(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.getJSON(ctx, "/api/config", &raw)
	return raw, err
}

func (c *Client) UpdateConfig(ctx context.Context, doc json.RawMessage) (Result, error) {
	return c.doResult(ctx, http.MethodPut, "/api/config", doc)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.client.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doResult(ctx context.Context, method, path string, body []byte) (Result, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	return res, nil
}

func decodeError(resp *http.Response) error {
	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err == nil && res.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, res.Message)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}
