// Package upstream implements the client for the optional fleet API.
//
// A device manager can run standalone, but when a fleet API base URL is
// configured it periodically reports metrics and polls for remotely issued
// commands. All calls go through a circuit breaker so a broken or
// unreachable fleet API cannot pile up goroutines or log noise on the
// device.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/logger"
)

// Client talks to the fleet API on behalf of one device.
//
// Credentials can be swapped at runtime by configuration hot reload; the
// mutex protects them.
type Client struct {
	mu       sync.RWMutex
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewClient creates a fleet API client. baseURL must be non-empty; the
// caller decides whether upstream integration is enabled at all.
func NewClient(baseURL, apiKey, deviceID string, timeout time.Duration) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "fleet-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Fleet API circuit breaker: %s -> %s", from, to)
		},
	})

	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		deviceID: deviceID,
		http:     &http.Client{Timeout: timeout},
		breaker:  breaker,
	}
}

// SetCredentials replaces the base URL and API key. Safe for concurrent
// use with in-flight requests, which keep the credentials they started
// with.
func (c *Client) SetCredentials(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.apiKey = apiKey
}

// ReportMetrics posts a metrics report for this device.
func (c *Client) ReportMetrics(ctx context.Context, report api.MetricsReport) error {
	path := fmt.Sprintf("/v1/devices/%s/metrics", c.deviceID)
	return c.do(ctx, http.MethodPost, path, report, nil)
}

// FetchCommands polls for commands issued to this device. The fleet API
// removes returned commands from its queue, so every fetched command must
// be submitted locally.
func (c *Client) FetchCommands(ctx context.Context) ([]api.SubmitCommandRequest, error) {
	path := fmt.Sprintf("/v1/devices/%s/commands", c.deviceID)

	var resp api.FetchCommandsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// AckCommand reports the outcome of a remotely issued command.
func (c *Client) AckCommand(ctx context.Context, rec api.CommandRecord) error {
	path := fmt.Sprintf("/v1/devices/%s/commands/%s/ack", c.deviceID, rec.ID)
	return c.do(ctx, http.MethodPost, path, rec, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.request(ctx, method, path, body, out)
	})
	return err
}

func (c *Client) request(ctx context.Context, method, path string, body, out any) error {
	c.mu.RLock()
	baseURL, apiKey := c.baseURL, c.apiKey
	c.mu.RUnlock()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fleet API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded amount of the body for the error message.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fleet API returned %d for %s %s: %s", resp.StatusCode, method, path, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode fleet API response: %w", err)
		}
	}

	return nil
}
