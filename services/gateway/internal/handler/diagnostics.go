package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/pkg/httputil"
)

// errorTestKinds lists the failures GET /error-test/{kind} can produce.
var errorTestKinds = []string{"400", "404", "500", "timeout", "exception"}

// errorTest produces a deliberate failure so error tracking and alerting
// can be exercised end to end.
func errorTest(hang time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch kind := chi.URLParam(r, "kind"); kind {
		case "400":
			httputil.WriteError(w, r, apperrors.InvalidInput("bad request error for testing"), nil)
		case "404":
			httputil.WriteError(w, r, apperrors.NotFound("test resource", "error-test"), nil)
		case "500":
			httputil.WriteError(w, r, apperrors.Internal(errors.New("internal server error for testing")), nil)
		case "timeout":
			t := time.NewTimer(hang)
			defer t.Stop()
			select {
			case <-r.Context().Done():
				httputil.WriteError(w, r, apperrors.ServiceUnavailable("request timed out"), nil)
			case <-t.C:
				httputil.WriteData(w, http.StatusOK, map[string]string{"message": "this should have timed out"})
			}
		case "exception":
			panic("unhandled exception for testing error tracking")
		default:
			httputil.WriteData(w, http.StatusOK, map[string]any{
				"message":   "unknown error type " + kind,
				"available": errorTestKinds,
			})
		}
	}
}
