package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hellodd/orderflow/pkg/breaker"
	"github.com/hellodd/orderflow/pkg/logger"
	"github.com/hellodd/orderflow/pkg/middleware"
)

func proxyTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBreaker(t *testing.T, name string) *breaker.CircuitBreaker {
	t.Helper()
	cb, err := breaker.New(breaker.Config{
		Name:                      name,
		FailureThreshold:          2,
		RecoveryTimeout:           time.Minute,
		HalfOpenSuccessesRequired: 1,
	}, breaker.WithLogger(proxyTestLogger()))
	require.NoError(t, err)
	return cb
}

func newProxy(t *testing.T, url string, opts Options) (*ServiceProxy, *breaker.CircuitBreaker) {
	t.Helper()
	cb := testBreaker(t, "inventory")
	return NewServiceProxy([]Backend{{Name: "inventory", URL: url, Breaker: cb}}, opts, proxyTestLogger()), cb
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestServiceProxy_ProxiesRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reservations/res-1/release", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"proxied": "true"})
	}))
	defer backend.Close()

	sp, cb := newProxy(t, backend.URL, Options{})
	rr := serve(sp.Handler("inventory"), "/api/v1/reservations/res-1/release")

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "true", body["proxied"])
	assert.Equal(t, uint64(1), cb.Counts().TotalSuccesses)
}

func TestServiceProxy_UnknownService_Returns502(t *testing.T) {
	sp, _ := newProxy(t, "http://localhost:1", Options{})

	rr := serve(sp.Handler("nonexistent"), "/")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rr).Error.Code)
}

func TestServiceProxy_InvalidURLIsSkipped(t *testing.T) {
	sp := NewServiceProxy([]Backend{{Name: "pricing", URL: "://bad", Breaker: testBreaker(t, "pricing")}}, Options{}, proxyTestLogger())

	rr := serve(sp.Handler("pricing"), "/")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestServiceProxy_UpstreamUnavailable_Returns502(t *testing.T) {
	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closed.Close()

	sp, cb := newProxy(t, closed.URL, Options{})
	rr := serve(sp.Handler("inventory"), "/api/v1/products/low-stock")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "DOWNSTREAM_FAILURE", decodeError(t, rr).Error.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, 1, cb.Counts().ConsecutiveFailures)
}

func TestServiceProxy_UpstreamTimeout_Returns502(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	sp, _ := newProxy(t, backend.URL, Options{ResponseTimeout: 50 * time.Millisecond})
	rr := serve(sp.Handler("inventory"), "/api/v1/products/low-stock")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestServiceProxy_5xxPassesThroughAndTripsBreaker(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"db down"}}`))
	}))
	defer backend.Close()

	sp, cb := newProxy(t, backend.URL, Options{})
	h := sp.Handler("inventory")

	for range 2 {
		rr := serve(h, "/api/v1/products/low-stock")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), "db down")
	}
	require.Equal(t, breaker.StateOpen, cb.State())

	rr := serve(h, "/api/v1/products/low-stock")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "CIRCUIT_OPEN", decodeError(t, rr).Error.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, int32(2), hits.Load())
}

func TestServiceProxy_4xxDoesNotCount(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer backend.Close()

	sp, cb := newProxy(t, backend.URL, Options{})
	for range 3 {
		assert.Equal(t, http.StatusNotFound, serve(sp.Handler("inventory"), "/api/v1/products/sku/NOPE").Code)
	}
	assert.Equal(t, breaker.StateClosed, cb.State())
}

func TestServiceProxy_ForwardsHeaders(t *testing.T) {
	var captured http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	sp, _ := newProxy(t, backend.URL, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/sku/LAPTOP-001", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-42"))
	rr := httptest.NewRecorder()
	sp.Handler("inventory").ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Bearer test-token", captured.Get("Authorization"))
	assert.Equal(t, "http", captured.Get("X-Forwarded-Proto"))
	assert.Equal(t, "corr-42", captured.Get("X-Correlation-ID"))
}

func TestServiceProxy_UserIDHeaderComesFromAuth(t *testing.T) {
	var captured http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	sp, _ := newProxy(t, backend.URL, Options{})
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "buyer-42", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("proxy-secret"))
	require.NoError(t, err)
	authed := middleware.Auth(middleware.NewJWTValidator([]byte("proxy-secret"), ""))(sp.Handler("inventory"))

	tests := []struct {
		name    string
		handler http.Handler
		token   string
		want    string
	}{
		{"anonymous spoof is stripped", sp.Handler("inventory"), "", ""},
		{"authenticated caller replaces spoof", authed, token, "buyer-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/res-1", nil)
			req.Header.Set(middleware.UserIDHeader, "admin")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, req)

			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, captured.Get(middleware.UserIDHeader))
		})
	}
}
