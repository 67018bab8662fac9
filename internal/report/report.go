// Package report posts run summaries to the backend that schedules
// generation runs.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Summary is the body posted at the end of a run.
type Summary struct {
	RunID      string  `json:"runId,omitempty"`
	Generated  int     `json:"generated"`
	Approved   int     `json:"approved"`
	Rejected   int     `json:"rejected"`
	Duplicates int     `json:"duplicates"`
	Inserted   int     `json:"inserted"`
	Cost       float64 `json:"cost"`
	DurationMs int64   `json:"durationMs"`
	Status     string  `json:"status"`
}

// Reporter delivers run summaries.
type Reporter interface {
	Report(ctx context.Context, s Summary) error
}

// Config locates the reporting endpoint.
type Config struct {
	// Endpoint receives the POST. Empty disables reporting.
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Client posts summaries as JSON.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *slog.Logger
}

var _ Reporter = (*Client)(nil)

// New returns a Reporter for cfg. Without an endpoint it returns a Nop.
func New(cfg Config, logger *slog.Logger) Reporter {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Report posts s. Any non-2xx response is an error.
func (c *Client) Report(ctx context.Context, s Summary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post summary: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("run summary reported", "run", s.RunID, "status", s.Status)
	return nil
}

// Nop discards summaries.
type Nop struct{}

func (Nop) Report(context.Context, Summary) error { return nil }
