package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hellodd/orderflow/pkg/httputil"
	"github.com/hellodd/orderflow/pkg/middleware"
	"github.com/hellodd/orderflow/pkg/saga"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
)

// CheckoutService places orders.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, in domain.PlaceOrderInput) (*domain.Order, *saga.Report, error)
}

// OrderHandler handles order placement.
type OrderHandler struct {
	checkout CheckoutService
	logger   *slog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(checkout CheckoutService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{checkout: checkout, logger: logger}
}

// PlaceOrderRequest is the JSON body of POST /api/v1/orders.
type PlaceOrderRequest struct {
	ProductID     string `json:"product_id" validate:"required,uuid"`
	Quantity      int    `json:"quantity" validate:"required,gte=1,lte=100"`
	CustomerTier  string `json:"customer_tier" validate:"omitempty,max=32"`
	PromoCode     string `json:"promo_code" validate:"omitempty,max=32"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,max=32"`
}

// OrderResponse is the body of a successful order placement.
type OrderResponse struct {
	Order *domain.Order `json:"order"`
	Saga  *saga.Report  `json:"saga"`
}

// Place handles POST /api/v1/orders. A failed checkout answers with the
// status of the step that failed and the saga report as error details; a
// rollback that did not finish answers 500.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}

	order, report, err := h.checkout.PlaceOrder(r.Context(), domain.PlaceOrderInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		CustomerTier:  req.CustomerTier,
		PromoCode:     req.PromoCode,
		PaymentMethod: req.PaymentMethod,
		UserID:        middleware.UserIDFromContext(r.Context()),
	})
	if err != nil {
		if report == nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteErrorWithDetails(w, r, err, report, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, OrderResponse{Order: order, Saga: report})
}
