package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hellodd/orderflow/pkg/httpclient"
)

// QuoteRequest is the body of a pricing quote call.
type QuoteRequest struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	CustomerTier   string `json:"customer_tier,omitempty"`
	PromoCode      string `json:"promo_code,omitempty"`
}

// Discount is one applied pricing rule.
type Discount struct {
	Code        string `json:"code"`
	AmountCents int64  `json:"amount_cents"`
}

// Quote mirrors the pricing service quote.
type Quote struct {
	ProductID          string     `json:"product_id"`
	UnitPriceCents     int64      `json:"unit_price_cents"`
	Quantity           int        `json:"quantity"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	Discounts          []Discount `json:"discounts"`
	DiscountTotalCents int64      `json:"discount_total_cents"`
	TotalCents         int64      `json:"total_cents"`
}

// PricingClient calls the pricing service.
type PricingClient struct {
	http *httpclient.BreakerClient
}

// NewPricingClient creates a client on top of a breaker-guarded HTTP client.
func NewPricingClient(c *httpclient.BreakerClient) *PricingClient {
	return &PricingClient{http: c}
}

// Quote prices a purchase.
func (c *PricingClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var q Quote
	if err := c.http.SendJSON(ctx, http.MethodPost, "/api/v1/pricing/quote", req, &q); err != nil {
		return nil, fmt.Errorf("calculate price: %w", err)
	}
	return &q, nil
}
