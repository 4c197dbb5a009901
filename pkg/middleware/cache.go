package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// CacheControl marks successful (2xx) GET and HEAD responses as publicly
// cacheable for maxAge. Error responses are left untouched, as is any
// Cache-Control the handler set itself.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			cw := &cacheWriter{ResponseWriter: w, value: value}
			next.ServeHTTP(cw, r)
			// Nothing written: the server sends an implicit 200.
			cw.decide(http.StatusOK)
		})
	}
}

// NoStore disables caching for a single response, e.g. a fallback body.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// cacheWriter sets Cache-Control once the status is known.
type cacheWriter struct {
	http.ResponseWriter
	value   string
	decided bool
}

func (cw *cacheWriter) decide(status int) {
	if cw.decided {
		return
	}
	cw.decided = true
	if status >= 200 && status < 300 && cw.Header().Get("Cache-Control") == "" {
		cw.Header().Set("Cache-Control", cw.value)
	}
}

func (cw *cacheWriter) WriteHeader(code int) {
	if code >= 200 {
		cw.decide(code)
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cacheWriter) Write(b []byte) (int, error) {
	cw.decide(http.StatusOK)
	return cw.ResponseWriter.Write(b)
}

func (cw *cacheWriter) Flush() {
	cw.decide(http.StatusOK)
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *cacheWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
