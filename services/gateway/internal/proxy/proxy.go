// Package proxy forwards the gateway's pass-through routes to the backend
// services. Every backend has its own circuit breaker in front of it.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/hellodd/orderflow/pkg/breaker"
	"github.com/hellodd/orderflow/pkg/httpclient"
	response "github.com/hellodd/orderflow/pkg/httputil"
	"github.com/hellodd/orderflow/pkg/logger"
	"github.com/hellodd/orderflow/pkg/middleware"
)

// Backend is one proxied service.
type Backend struct {
	Name    string
	URL     string
	Breaker *breaker.CircuitBreaker
}

// Options tunes the shared upstream transport.
type Options struct {
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	MaxIdleConns    int
}

// ServiceProxy manages reverse proxies to backend microservices.
type ServiceProxy struct {
	routes map[string]*httputil.ReverseProxy
	logger *slog.Logger
}

// NewServiceProxy creates a reverse proxy for each backend.
func NewServiceProxy(backends []Backend, opts Options, log *slog.Logger) *ServiceProxy {
	sp := &ServiceProxy{
		routes: make(map[string]*httputil.ReverseProxy),
		logger: log,
	}

	base := newTransport(opts)
	for _, b := range backends {
		target, err := url.Parse(b.URL)
		if err != nil {
			log.Error("invalid service URL",
				slog.String("service", b.Name),
				slog.String("url", b.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		sp.routes[b.Name] = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
				if id := logger.CorrelationIDFromContext(pr.In.Context()); id != "" {
					pr.Out.Header.Set("X-Correlation-ID", id)
				}
				// Backends trust this header, so clients never get to set it.
				pr.Out.Header.Del(middleware.UserIDHeader)
				if id := middleware.UserIDFromContext(pr.In.Context()); id != "" {
					pr.Out.Header.Set(middleware.UserIDHeader, id)
				}
			},
			Transport:    &breakerTransport{next: base, cb: b.Breaker, service: b.Name},
			ErrorHandler: sp.errorHandler(b.Name),
		}

		log.Info("registered service proxy",
			slog.String("service", b.Name),
			slog.String("target", b.URL),
		)
	}

	return sp
}

// Handler returns an http.Handler that proxies requests to the named backend service.
func (sp *ServiceProxy) Handler(serviceName string) http.Handler {
	proxy, ok := sp.routes[serviceName]
	if !ok {
		sp.logger.Error("no proxy registered for service", slog.String("service", serviceName))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			response.WriteJSON(w, http.StatusBadGateway, response.Response{Error: &response.ErrorResponse{
				Code:    "SERVICE_UNAVAILABLE",
				Message: "service not configured",
			}})
		})
	}
	return proxy
}

// errorHandler answers with the standard error envelope. A rejected call
// becomes 503 with Retry-After; an unreachable backend becomes 502.
func (sp *ServiceProxy) errorHandler(serviceName string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if !breaker.IsOpen(err) {
			sp.logger.ErrorContext(r.Context(), "proxy error",
				slog.String("service", serviceName),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		response.WriteError(w, r, err, sp.logger)
	}
}

// errServerStatus marks a 5xx response as a breaker failure while the
// response itself is still relayed to the client.
var errServerStatus = errors.New("upstream server error")

type breakerTransport struct {
	next    http.RoundTripper
	cb      *breaker.CircuitBreaker
	service string
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := breaker.Execute(req.Context(), t.cb, func(ctx context.Context) (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, &httpclient.DownstreamError{Service: t.service, Err: err}
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}

func newTransport(opts Options) *http.Transport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 100
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.ResponseTimeout,
	}
}
