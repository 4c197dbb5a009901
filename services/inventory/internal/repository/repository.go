package repository

import (
	"context"

	"github.com/hellodd/orderflow/services/inventory/internal/domain"
)

// ProductRepository defines the interface for product and stock persistence.
type ProductRepository interface {
	// List returns products matching the filter and the total match count.
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)

	// GetByID retrieves a product by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetBySKU retrieves a product by its SKU.
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)

	// ListLowStock returns active products whose stock level is at or below threshold.
	ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error)

	// UpdateStock applies op to the product's stock level under a row lock.
	UpdateStock(ctx context.Context, id string, op domain.StockOperation, quantity int) (*domain.Product, error)
}

// ReservationRepository defines the interface for reservation persistence.
// Every state change runs in one transaction with the product row locked.
type ReservationRepository interface {
	// Reserve holds res.Quantity units of res.ProductID and stores res.
	// It returns the product after the hold.
	Reserve(ctx context.Context, res *domain.Reservation) (*domain.Product, error)

	// GetReservation retrieves a reservation by its unique identifier.
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)

	// Release returns the held stock. Releasing twice is a no-op.
	Release(ctx context.Context, id string) (*domain.Settlement, error)

	// Confirm deducts the held stock from the stock level.
	Confirm(ctx context.Context, id string) (*domain.Settlement, error)

	// Expire releases a holding reservation and marks it expired.
	Expire(ctx context.Context, id string) (*domain.Settlement, error)

	// ListExpired returns up to limit holding reservations past their expiry.
	ListExpired(ctx context.Context, limit int) ([]domain.Reservation, error)
}
