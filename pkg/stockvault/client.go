// Package stockvault is a Go client for the live daemon's operational
// endpoints.
package stockvault

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"stockvault/internal/gather/us"
)

// Client queries a running us-live daemon.
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates a client for the daemon at baseURL.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
	}
}

// Health returns nil when the daemon reports it is serving.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("GET /health: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("GET /health: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// Status returns the daemon's current status snapshot.
func (c *Client) Status(ctx context.Context) (us.DaemonStatus, error) {
	var st us.DaemonStatus
	resp, err := c.http.R().SetContext(ctx).SetResult(&st).Get("/status")
	if err != nil {
		return st, fmt.Errorf("GET /status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return st, fmt.Errorf("GET /status: %s", resp.Status())
	}
	return st, nil
}
