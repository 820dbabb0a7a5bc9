// Package camera fetches panel snapshots from an HTTP image source.
package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client fetches snapshot frames with a bounded retry budget. A frame is
// ephemeral: one fetch per poll tick, nothing cached.
type Client struct {
	url        string
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
}

// NewClient creates a snapshot client.
func NewClient(url string, timeout time.Duration, retries int, retryDelay time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if retries <= 0 {
		retries = 1
	}
	return &Client{
		url:        url,
		retries:    retries,
		retryDelay: retryDelay,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the snapshot source address.
func (c *Client) URL() string {
	return c.url
}

// Fetch returns one snapshot's raw bytes. Transient failures are retried
// up to the configured budget; an exhausted budget surfaces as a tick-level
// error and the caller keeps its prior state.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		data, err := c.fetchOnce(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt == 1 {
			log.Debug().Err(err).Str("url", c.url).Msg("Snapshot fetch failed")
		}
		if attempt < c.retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("snapshot fetch failed after %d attempts: %w", c.retries, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
