package service

import (
	"context"
	"time"

	"github.com/hellodd/orderflow/services/gateway/internal/cache"
	"github.com/hellodd/orderflow/services/gateway/internal/client"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
)

// Inventory is the subset of the inventory client the gateway uses.
type Inventory interface {
	ListProducts(ctx context.Context, limit int) ([]client.Product, error)
	GetProduct(ctx context.Context, id string) (*client.Product, error)
	Reserve(ctx context.Context, productID string, quantity int) (*client.Reservation, error)
	Release(ctx context.Context, reservationID string) (*client.Settlement, error)
	Confirm(ctx context.Context, reservationID string) (*client.Settlement, error)
}

// Pricing is the subset of the pricing client the gateway uses.
type Pricing interface {
	Quote(ctx context.Context, req client.QuoteRequest) (*client.Quote, error)
}

// ListingCache stores product listings.
type ListingCache interface {
	Get(ctx context.Context, limit int) (*cache.Entry, error)
	GetStale(ctx context.Context, limit int) (*cache.Entry, error)
	Set(ctx context.Context, limit int, products []domain.ProductView, now time.Time) error
}
