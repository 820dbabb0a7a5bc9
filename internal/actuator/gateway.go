package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// GatewayClient is a Transport backed by a miio-style HTTP command gateway.
// Sends are serialized and spaced by at least the command delay; the heater
// debounces keypresses and drops commands that arrive too close together.
type GatewayClient struct {
	url        string
	token      string
	httpClient *http.Client

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewGatewayClient creates a gateway transport.
func NewGatewayClient(url, token string, timeout, commandDelay time.Duration) *GatewayClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if commandDelay <= 0 {
		commandDelay = 600 * time.Millisecond
	}
	return &GatewayClient{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(commandDelay), 1),
	}
}

type gatewayRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type gatewayResponse struct {
	Result []string `json:"result"`
	Error  string   `json:"error,omitempty"`
}

// Send implements Transport. It blocks on the rate limiter, posts the
// payload, and requires the gateway's "ok" acknowledgement of transmission.
// The acknowledgement covers the radio send only, never the appliance.
func (c *GatewayClient) Send(ctx context.Context, method Method, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(gatewayRequest{Method: string(method), Params: []string{payload}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway send (%s): %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway send (%s): unexpected status code %d", method, resp.StatusCode)
	}

	var result gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("gateway send (%s): decode response: %w", method, err)
	}
	if result.Error != "" {
		return fmt.Errorf("gateway send (%s): %s", method, result.Error)
	}
	if len(result.Result) == 0 || result.Result[0] != "ok" {
		return fmt.Errorf("gateway send (%s): unexpected result %v", method, result.Result)
	}

	log.Debug().Str("method", string(method)).Msg("Command sent")
	return nil
}
