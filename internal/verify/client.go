package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/loadline/loadline/internal/config"
)

const (
	// defaultTimeout bounds a single lookup attempt.
	defaultTimeout = 5 * time.Second
	// defaultMaxRetries is the retry budget for transient failures.
	defaultMaxRetries = 2
	// retryBackoff is the pause between retry attempts.
	retryBackoff = 500 * time.Millisecond
)

// httpDoer abstracts the HTTP client, enabling test mocks.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the HTTP implementation of Gateway. It retries transient
// failures a bounded number of times; the conversation layer never
// retries on top of it.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	httpClient httpDoer
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per-attempt bound, defaults to defaultTimeout
	MaxRetries int           // defaults to defaultMaxRetries
	// For testing: inject a mock HTTP client.
	HTTPClient httpDoer
}

// NewClient creates a verification gateway Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("verify: base URL is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		timeout:    timeout,
		maxRetries: retries,
		httpClient: hc,
	}, nil
}

// FromConfig creates a Client from gateway configuration.
func FromConfig(cfg config.GatewayConfig) (*Client, error) {
	return NewClient(ClientOpts{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
	})
}

// Verify implements Gateway. A 200 response carries a Result; any other
// status or transport error is retried, then reported as
// ErrGatewayUnavailable.
func (c *Client) Verify(ctx context.Context, authorityID string) (*Result, error) {
	if authorityID == "" {
		return nil, fmt.Errorf("verify: authority ID is required")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
			case <-time.After(retryBackoff):
			}
		}

		res, err := c.attempt(ctx, authorityID)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

func (c *Client) attempt(ctx context.Context, authorityID string) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/carriers/%s", c.baseURL, url.PathEscape(authorityID))
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown authority number is a definitive negative, not an outage.
		return &Result{Verified: false, Reason: "authority not found"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &res, nil
}
