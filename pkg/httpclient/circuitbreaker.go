package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hellodd/orderflow/pkg/breaker"
	"github.com/hellodd/orderflow/pkg/logger"
)

// FallbackFunc is invoked when the breaker rejects a request. It receives
// the rejection error and returns a substitute response.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

var breakerFallbackTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "circuit_breaker_fallback_invoked_total",
		Help: "Total number of times the circuit breaker fallback was invoked",
	},
	[]string{"name"},
)

// ErrCircuitOpen is returned when the breaker rejects a request.
var ErrCircuitOpen = breaker.ErrOpen

// BreakerClient sends requests to one downstream service through a circuit
// breaker. Transport errors and 5xx responses are failures; 4xx responses
// are returned to the caller and leave the breaker untouched.
type BreakerClient struct {
	doer     Doer
	breaker  *breaker.CircuitBreaker
	service  string
	baseURL  string
	logger   *slog.Logger
	fallback FallbackFunc
}

// NewBreakerClient wraps doer with cb. baseURL is prefixed to the paths
// passed to GetJSON and SendJSON.
func NewBreakerClient(doer Doer, cb *breaker.CircuitBreaker, baseURL string, log *slog.Logger) *BreakerClient {
	return &BreakerClient{
		doer:    doer,
		breaker: cb,
		service: cb.Name(),
		baseURL: baseURL,
		logger:  log,
	}
}

// WithFallback returns a copy that calls fn instead of returning
// ErrCircuitOpen.
func (c *BreakerClient) WithFallback(fn FallbackFunc) *BreakerClient {
	cpy := *c
	cpy.fallback = fn
	return &cpy
}

// Breaker returns the underlying circuit breaker.
func (c *BreakerClient) Breaker() *breaker.CircuitBreaker {
	return c.breaker
}

// Do executes req through the breaker. A 5xx response is closed and
// returned as a *DownstreamError.
func (c *BreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if id := logger.CorrelationIDFromContext(ctx); id != "" && req.Header.Get("X-Correlation-ID") == "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := breaker.Execute(ctx, c.breaker, func(ctx context.Context) (*http.Response, error) {
		resp, err := c.doer.Do(ctx, req)
		if err != nil {
			return nil, &DownstreamError{Service: c.service, Err: err}
		}
		if resp.StatusCode >= 500 {
			return nil, ParseResponseError(resp, c.service)
		}
		return resp, nil
	})
	if err != nil && c.fallback != nil && breaker.IsOpen(err) {
		breakerFallbackTotal.WithLabelValues(c.service).Inc()
		c.logger.WarnContext(ctx, "circuit breaker open, invoking fallback",
			slog.String("breaker", c.service),
		)
		return c.fallback(ctx, err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetJSON issues GET baseURL+path and decodes the "data" field of the
// standard envelope into out.
func (c *BreakerClient) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create GET request: %w", err)
	}
	return c.doJSON(ctx, req, out)
}

// SendJSON issues method baseURL+path with body encoded as JSON and
// decodes the "data" field of the response into out. out may be nil.
func (c *BreakerClient) SendJSON(ctx context.Context, method, path string, body, out any) error {
	var buf []byte
	if body != nil {
		var err error
		buf, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(ctx, req, out)
}

func (c *BreakerClient) doJSON(ctx context.Context, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ParseResponseError(resp, c.service)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", c.service, err)
	}
	return nil
}
