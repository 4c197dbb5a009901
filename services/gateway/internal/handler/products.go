package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hellodd/orderflow/pkg/httputil"
	"github.com/hellodd/orderflow/pkg/middleware"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
)

// CatalogService serves product reads.
type CatalogService interface {
	ListProducts(ctx context.Context, limit int) (*domain.ProductList, error)
	GetProduct(ctx context.Context, id string) (*domain.ProductView, error)
}

// ProductHandler handles the gateway's product endpoints.
type ProductHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(catalog CatalogService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

// List handles GET /api/v1/products. A degraded listing is flagged with
// X-Fallback and must not be cached by clients.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "limit must be a positive integer"},
			})
			return
		}
		limit = v
	}

	list, err := h.catalog.ListProducts(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("X-Data-Source", list.Source)
	if list.Fallback {
		w.Header().Set("X-Fallback", "true")
		middleware.NoStore(w)
	}
	httputil.WriteData(w, http.StatusOK, list)
}

// Get handles GET /api/v1/products/{id}.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, product)
}
