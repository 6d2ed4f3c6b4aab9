// Package api is the HTTP client for the AbrenFund REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pscheid92/abrenfund/internal/adapter/metrics"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/platform/correlation"
	"github.com/pscheid92/abrenfund/internal/platform/retry"
	"github.com/sony/gobreaker"
)

const maxErrorBody = 64 << 10

// StatusError is a non-2xx response the client has no sentinel for.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.Code)
}

// Server errors and throttling count against the circuit breaker.
func (e *StatusError) transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	retry   retry.Policy
	metrics *metrics.APIMetrics
}

var _ domain.Backend = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *metrics.APIMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetryPolicy replaces the policy used for idempotent reads.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// New creates a client for the API rooted at baseURL. Each request is bounded
// by timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   100 * time.Millisecond,
			MaxBackoff:       time.Second,
			RateLimitBackoff: 2 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend-api",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.transient()
			}
			return err == nil || !errors.Is(err, domain.ErrBackendUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if c.metrics != nil {
				c.metrics.SetBreakerState(float64(to))
			}
		},
	})
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			slog.Debug("Retrying backend request", "attempt", attempt, "error", err, "backoff", backoff)
		}
	}
	return c
}

// BreakerState exposes the circuit breaker state for health checks.
func (c *Client) BreakerState() gobreaker.State {
	return c.cb.State()
}

type request struct {
	op     string
	method string
	path   string
	token  string
	body   any
	out    any
}

// send runs one request through the breaker. Reads are retried on transient
// failures.
func (c *Client) send(ctx context.Context, r request) error {
	if r.method != http.MethodGet {
		return c.attempt(ctx, r)
	}

	policy := c.retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		if c.metrics != nil {
			c.metrics.Retry(r.op)
		}
		onRetry(attempt, err, backoff)
	}
	return retry.DoVoid(ctx, policy, classify, func(ctx context.Context) error {
		return c.attempt(ctx, r)
	})
}

func classify(err error) retry.Action {
	var se *StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return retry.Stop
	case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
		return retry.After
	case errors.As(err, &se) && se.transient():
		return retry.Retry
	case errors.Is(err, domain.ErrBackendUnavailable):
		return retry.Retry
	default:
		return retry.Stop
	}
}

func (c *Client) attempt(ctx context.Context, r request) error {
	start := time.Now()
	status := "error"

	_, err := c.cb.Execute(func() (any, error) {
		code, err := c.roundTrip(ctx, r)
		if code > 0 {
			status = fmt.Sprint(code)
		}
		return nil, err
	})

	if c.metrics != nil {
		c.metrics.ObserveRequest(r.op, status, time.Since(start))
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request) (int, error) {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrBackendUnavailable, r.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if r.out == nil || resp.StatusCode == http.StatusNoContent {
			return resp.StatusCode, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", r.op, err)
		}
		return resp.StatusCode, nil
	}

	return resp.StatusCode, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnprocessableEntity:
		var fe domain.FieldErrors
		if err := json.Unmarshal(raw, &fe); err == nil && (len(fe.Fields) > 0 || fe.Message != "") {
			return &fe
		}
	}
	return &StatusError{Code: resp.StatusCode, Body: string(raw)}
}
