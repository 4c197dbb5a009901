package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hellodd/orderflow/pkg/httputil"
	"github.com/hellodd/orderflow/services/pricing/internal/domain"
)

// PricingService is the business layer the handlers call.
type PricingService interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
	Rules() []domain.Rule
}

// PricingHandler handles HTTP requests for pricing endpoints.
type PricingHandler struct {
	service PricingService
	logger  *slog.Logger
}

// NewPricingHandler creates a new pricing HTTP handler.
func NewPricingHandler(svc PricingService, logger *slog.Logger) *PricingHandler {
	return &PricingHandler{
		service: svc,
		logger:  logger,
	}
}

// QuoteRequest is the JSON request body for a price quote.
type QuoteRequest struct {
	ProductID      string `json:"product_id" validate:"required,uuid"`
	SKU            string `json:"sku" validate:"omitempty,sku"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
	Quantity       int    `json:"quantity" validate:"required,gte=1,lte=10000"`
	CustomerTier   string `json:"customer_tier" validate:"omitempty,max=32"`
	PromoCode      string `json:"promo_code" validate:"omitempty,max=32"`
}

// Quote handles POST /api/v1/pricing/quote
func (h *PricingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	quote, err := h.service.Quote(r.Context(), domain.QuoteRequest{
		ProductID:      req.ProductID,
		SKU:            req.SKU,
		UnitPriceCents: req.UnitPriceCents,
		Quantity:       req.Quantity,
		CustomerTier:   req.CustomerTier,
		PromoCode:      req.PromoCode,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, quote)
}

// ListRules handles GET /api/v1/pricing/rules
func (h *PricingHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.service.Rules())
}
