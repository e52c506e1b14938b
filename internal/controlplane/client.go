/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

const userAgent = "workload-launcher/v1"

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	QPS     float64
	Burst   int

	// Credentials. With a TokenURL the client-credentials flow is used;
	// a secret alone is sent as a static bearer token.
	ClientID     string
	ClientSecret string
	TokenURL     string

	// HTTPClient is the transport used for requests and token fetches.
	HTTPClient *http.Client

	// Breaker settings; zero values take the defaults below.
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	BreakerMinRequests uint32
	BreakerFailRatio   float64
}

// Client talks to the workload registry. Every call is rate limited,
// guarded by a circuit breaker and tagged with correlation headers taken
// from the context.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	timeout    time.Duration
	logger     logging.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid control plane url %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.QPS * 2)
	}
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = 5
	}
	if cfg.BreakerInterval <= 0 {
		cfg.BreakerInterval = 30 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 15 * time.Second
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 5
	}
	if cfg.BreakerFailRatio <= 0 {
		cfg.BreakerFailRatio = 0.6
	}

	c := &Client{
		baseURL:    base,
		httpClient: authenticatedClient(cfg),
		limiter:    rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Burst),
		timeout:    cfg.Timeout,
		logger:     logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "control-plane",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.BreakerMinRequests && failureRatio >= cfg.BreakerFailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WarnEvent("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.clientError()
		},
	})

	return c, nil
}

func authenticatedClient(cfg ClientConfig) *http.Client {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	switch {
	case cfg.TokenURL != "" && cfg.ClientSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		return cc.Client(ctx)
	case cfg.ClientSecret != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.ClientSecret}))
	default:
		return base
	}
}

// InitializeDataplane registers this dataplane and returns its configuration.
func (c *Client) InitializeDataplane(ctx context.Context, clientID string) (*DataplaneConfig, error) {
	var cfg DataplaneConfig
	if err := c.do(ctx, "InitializeDataplane", http.MethodPost, "/api/v1/dataplanes/initialize", dataplaneRequest{ClientID: clientID}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HeartbeatDataplane fetches the current configuration for this dataplane.
func (c *Client) HeartbeatDataplane(ctx context.Context, clientID string) (*DataplaneConfig, error) {
	var cfg DataplaneConfig
	if err := c.do(ctx, "HeartbeatDataplane", http.MethodPost, "/api/v1/dataplanes/heartbeat", dataplaneRequest{ClientID: clientID}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Claim asks for exclusive rights to process a workload. It is safe to
// repeat for a claim the caller already holds.
func (c *Client) Claim(ctx context.Context, req ClaimRequest) (bool, error) {
	var resp claimResponse
	if err := c.do(ctx, "Claim", http.MethodPost, "/api/v1/workloads/claim", req, &resp); err != nil {
		return false, err
	}
	return resp.Claimed, nil
}

// GetWorkload returns the registry's current view of a workload.
func (c *Client) GetWorkload(ctx context.Context, workloadID string) (*Workload, error) {
	var w Workload
	path := "/api/v1/workloads/" + url.PathEscape(workloadID)
	if err := c.do(ctx, "GetWorkload", http.MethodGet, path, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ReportFailure marks a workload failed. Duplicate reports are harmless.
func (c *Client) ReportFailure(ctx context.Context, req FailureRequest) error {
	return c.do(ctx, "ReportFailure", http.MethodPost, "/api/v1/workloads/failure", req, nil)
}

// do executes one request through the limiter and breaker.
func (c *Client) do(ctx context.Context, operation, method, path string, requestBody, responseBody interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", operation, err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.makeRequest(ctx, operation, method, path, requestBody, responseBody)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return err
}

func (c *Client) makeRequest(ctx context.Context, operation, method, path string, requestBody, responseBody interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request body: %w", operation, err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	endpoint := c.baseURL.String() + path
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to create HTTP request: %w", operation, err)
	}

	if requestBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if tags, ok := workload.TagsFromContext(ctx); ok {
		for k, v := range tags.Headers() {
			httpReq.Header.Set(k, v)
		}
	}

	c.logger.DebugEvent("Calling control plane", "operation", operation, "method", method, "path", path)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if responseBody != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(responseBody); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", operation, err)
		}
	}

	return nil
}
