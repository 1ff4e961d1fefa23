// Package httpclient wraps the standard http.Client with optional circuit
// breaking for outbound calls to tool backends.
package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"aide/pkg/circuitbreaker"
)

// Client executes HTTP requests, treating 5xx responses as failures for the
// circuit breaker. With no breaker configured it degrades to a plain client.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// Config controls breaker construction.
type Config struct {
	Enabled          bool
	FailureThreshold uint32
	SuccessThreshold uint32
	Timeout          time.Duration
}

// New creates a Client. Requests carry a 30s overall timeout; callers needing
// tighter bounds use request contexts.
func New(cfg Config) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.Enabled {
		c.breaker = circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.Timeout)
	}
	return c
}

// Do executes the request. While the breaker is open it fails fast with
// circuitbreaker.ErrOpen without touching the network.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Do(func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return fmt.Errorf("server error: status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
