// Package apiclient provides an HTTP JSON client with timeouts, retries and a circuit breaker.
package apiclient

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

var (
	// ErrCircuitOpen is returned without calling upstream while the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrUpstreamUnavailable wraps transport failures: refused connections, timeouts
	// and a request deadline exhausted while retrying
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// HTTPError describes a non-2xx upstream response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Config holds per-upstream client settings
type Config struct {
	Name                 string
	BaseURL              string
	Timeout              time.Duration
	RetryAttempts        int
	RetryInitialInterval time.Duration
	FailureThreshold     int
	RecoveryTimeout      time.Duration
	MonitoringPeriod     time.Duration
}

// RequestConfig collects per-request options
type RequestConfig struct {
	Query   url.Values
	Headers http.Header
}

// RequestOption customises a single request
type RequestOption func(*RequestConfig)

// WithQuery sets the query string
func WithQuery(q url.Values) RequestOption {
	return func(rc *RequestConfig) {
		rc.Query = q
	}
}

// WithBearerToken sets the Authorization header
func WithBearerToken(token string) RequestOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithHeader sets an arbitrary request header
func WithHeader(key, value string) RequestOption {
	return func(rc *RequestConfig) {
		rc.Headers.Set(key, value)
	}
}

// Client calls one upstream base URL. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New creates a client for cfg
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Name == "" {
		cfg.Name = cfg.BaseURL
	}

	threshold := uint32(cfg.FailureThreshold)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.MonitoringPeriod,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
	}
}

// CircuitBreakerState returns "closed", "half-open" or "open"
func (c *Client) CircuitBreakerState() string {
	return c.breaker.State().String()
}

// Get performs a GET request and returns the raw JSON body
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts)
}

// Post performs a POST request with body encoded as JSON
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, payload, opts)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, opts []RequestOption) (json.RawMessage, error) {
	rc := &RequestConfig{Headers: http.Header{}}
	for _, opt := range opts {
		opt(rc)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(rc.Query) > 0 {
		endpoint += "?" + rc.Query.Encode()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialInterval
	b.MaxElapsedTime = 0

	var retries uint64
	if c.cfg.RetryAttempts > 0 {
		retries = uint64(c.cfg.RetryAttempts)
	}

	var result json.RawMessage
	operation := func() error {
		body, err := c.attempt(ctx, method, endpoint, payload, rc.Headers)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = body
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return result, nil
}

// clientError carries a 4xx response through the breaker without counting it as a failure
type clientError struct {
	err *HTTPError
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, headers http.Header) (json.RawMessage, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header = headers.Clone()
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return clientError{err: &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}}, nil
		}
		if len(bytes.TrimSpace(data)) == 0 {
			data = []byte("null")
		}
		return json.RawMessage(data), nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", c.cfg.Name, ErrCircuitOpen)
		}
		return nil, err
	}

	if ce, ok := out.(clientError); ok {
		return nil, ce.err
	}
	return out.(json.RawMessage), nil
}
