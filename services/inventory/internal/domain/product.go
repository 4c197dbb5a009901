package domain

import (
	"fmt"
	"time"
)

// Product is a sellable item together with its stock counters.
type Product struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	PriceCents    int64     `json:"price_cents"`
	StockLevel    int       `json:"stock_level"`
	ReservedStock int       `json:"reserved_stock"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available is the stock that can still be reserved. Never negative.
func (p *Product) Available() int {
	return max(0, p.StockLevel-p.ReservedStock)
}

// InStock reports whether at least one unit can be reserved.
func (p *Product) InStock() bool {
	return p.Available() > 0
}

// CanReserve reports whether quantity units can be reserved.
func (p *Product) CanReserve(quantity int) bool {
	return quantity > 0 && p.Available() >= quantity
}

// StockOperation is how a stock update quantity is applied.
type StockOperation string

const (
	StockAdd      StockOperation = "add"
	StockSubtract StockOperation = "subtract"
	StockSet      StockOperation = "set"
)

// Apply returns the new stock level for current after applying op with
// quantity. The result is clamped at zero.
func (op StockOperation) Apply(current, quantity int) (int, error) {
	switch op {
	case StockAdd:
		return max(0, current+quantity), nil
	case StockSubtract:
		return max(0, current-quantity), nil
	case StockSet:
		return max(0, quantity), nil
	default:
		return 0, fmt.Errorf("invalid stock operation %q", string(op))
	}
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	InStockOnly bool
	Limit       int
	Offset      int
}

// StockInfo is the stock view of a single product.
type StockInfo struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	StockLevel     int    `json:"stock_level"`
	ReservedStock  int    `json:"reserved_stock"`
	AvailableStock int    `json:"available_stock"`
	InStock        bool   `json:"in_stock"`
}

// Stock returns the stock view of p.
func (p *Product) Stock() StockInfo {
	return StockInfo{
		ProductID:      p.ID,
		SKU:            p.SKU,
		StockLevel:     p.StockLevel,
		ReservedStock:  p.ReservedStock,
		AvailableStock: p.Available(),
		InStock:        p.InStock(),
	}
}
