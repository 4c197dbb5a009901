package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hellodd/orderflow/pkg/logger"
)

// UserIDHeader carries the authenticated caller from the gateway to the
// services behind it. The gateway is the only party allowed to set it.
const UserIDHeader = "X-User-ID"

// RequestLogger stores a request-scoped logger in the context so handlers,
// httputil.WriteError and the saga coordinator log with correlation, user
// and trace ids attached. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := callerID(r); id != "" {
				ctx = logger.WithUserID(ctx, id)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerID prefers a caller authenticated in this process over the
// forwarded header.
func callerID(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(UserIDHeader)
}
