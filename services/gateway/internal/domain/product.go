package domain

import "time"

// Product list sources reported to clients.
const (
	SourceInventory  = "inventory"
	SourceCache      = "cache"
	SourceStaleCache = "stale_cache"
	SourceFallback   = "fallback"
)

// ProductView is a product as the gateway presents it. DiscountedPriceCents
// is the indicative member price shown on listings.
type ProductView struct {
	ID                   string `json:"id"`
	SKU                  string `json:"sku"`
	Name                 string `json:"name"`
	StockLevel           int    `json:"stock_level"`
	AvailableStock       int    `json:"available_stock"`
	PriceCents           int64  `json:"price_cents"`
	DiscountedPriceCents int64  `json:"discounted_price_cents"`
}

// ListingDiscount returns the listing price, 10% off rounded down to the cent.
func ListingDiscount(priceCents int64) int64 {
	return priceCents * 9 / 10
}

// ProductList is the body of GET /api/v1/products.
type ProductList struct {
	Products  []ProductView `json:"products"`
	Source    string        `json:"source"`
	Cached    bool          `json:"cached"`
	Fallback  bool          `json:"fallback"`
	Timestamp time.Time     `json:"timestamp"`
}
