package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hellodd/orderflow/pkg/breaker"
	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/pkg/httputil"
)

// BreakerHandler exposes the gateway's circuit breakers.
type BreakerHandler struct {
	registry *breaker.Registry
	logger   *slog.Logger
}

// NewBreakerHandler creates a new breaker handler.
func NewBreakerHandler(registry *breaker.Registry, logger *slog.Logger) *BreakerHandler {
	return &BreakerHandler{registry: registry, logger: logger}
}

// List handles GET /api/v1/breakers.
func (h *BreakerHandler) List(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.registry.Snapshots())
}

// Reset handles POST /api/v1/breakers/{name}/reset.
func (h *BreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cb, ok := h.registry.Get(name)
	if !ok {
		httputil.WriteError(w, r, apperrors.NotFound("breaker", name), h.logger)
		return
	}

	cb.Reset()
	h.logger.WarnContext(r.Context(), "circuit breaker reset by operator", slog.String("breaker", name))
	httputil.WriteData(w, http.StatusOK, cb.Snapshot())
}
