package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hellodd/orderflow/pkg/httputil"
	"github.com/hellodd/orderflow/pkg/pagination"
	"github.com/hellodd/orderflow/services/inventory/internal/domain"
)

// InventoryService is the business layer the handlers call.
type InventoryService interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetStock(ctx context.Context, id string) (*domain.StockInfo, error)
	UpdateStock(ctx context.Context, id string, op domain.StockOperation, quantity int) (*domain.Product, error)
	ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error)
	Reserve(ctx context.Context, productID string, quantity int) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	ReleaseReservation(ctx context.Context, id string) (*domain.Settlement, error)
	ConfirmReservation(ctx context.Context, id string) (*domain.Settlement, error)
}

// InventoryHandler handles HTTP requests for product and reservation endpoints.
type InventoryHandler struct {
	service InventoryService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc InventoryService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// UpdateStockRequest is the JSON request body for changing a stock level.
type UpdateStockRequest struct {
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Operation string `json:"operation" validate:"required,oneof=add subtract set"`
}

// ReserveRequest is the JSON request body for reserving stock.
type ReserveRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// --- Product handlers ---

// ListProducts handles GET /api/v1/products
func (h *InventoryHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	inStockOnly, _ := strconv.ParseBool(r.URL.Query().Get("in_stock_only"))

	products, total, err := h.service.ListProducts(r.Context(), domain.ProductFilter{
		InStockOnly: inStockOnly,
		Limit:       params.Limit,
		Offset:      params.Offset,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, pagination.NewResult(products, total, params))
}

// GetProduct handles GET /api/v1/products/{id}
func (h *InventoryHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	product, err := h.service.GetProduct(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, product)
}

// GetProductBySKU handles GET /api/v1/products/sku/{sku}
func (h *InventoryHandler) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProductBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, product)
}

// GetStock handles GET /api/v1/products/{id}/stock
func (h *InventoryHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	stock, err := h.service.GetStock(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, stock)
}

// UpdateStock handles PUT /api/v1/products/{id}/stock
func (h *InventoryHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateStockRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	product, err := h.service.UpdateStock(r.Context(), id.String(), domain.StockOperation(req.Operation), req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, product.Stock())
}

// ListLowStock handles GET /api/v1/products/low-stock?threshold=
func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 0
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "threshold must be a non-negative integer"},
			})
			return
		}
		threshold = n
	}

	products, err := h.service.ListLowStock(r.Context(), threshold)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, products)
}

// --- Reservation handlers ---

// Reserve handles POST /api/v1/reservations
func (h *InventoryHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.service.Reserve(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, res)
}

// GetReservation handles GET /api/v1/reservations/{id}
func (h *InventoryHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	res, err := h.service.GetReservation(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, res)
}

// ReleaseReservation handles POST /api/v1/reservations/{id}/release
func (h *InventoryHandler) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.ReleaseReservation)
}

// ConfirmReservation handles POST /api/v1/reservations/{id}/confirm
func (h *InventoryHandler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.ConfirmReservation)
}

func (h *InventoryHandler) settle(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*domain.Settlement, error)) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	settlement, err := fn(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, settlement)
}
