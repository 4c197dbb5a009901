package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/pkg/pagination"
	"github.com/hellodd/orderflow/services/inventory/internal/domain"
	"github.com/hellodd/orderflow/services/inventory/internal/repository"
)

const (
	// DefaultLowStockThreshold is used when a caller does not pass one.
	DefaultLowStockThreshold = 10

	expiryBatchSize = 100
)

// EventPublisher is the subset of the event producer the service uses.
type EventPublisher interface {
	PublishStockUpdated(ctx context.Context, product *domain.Product) error
	PublishReservation(ctx context.Context, res *domain.Reservation) error
	PublishLowStock(ctx context.Context, product *domain.Product, threshold int) error
}

// Options tunes the inventory service.
type Options struct {
	ReservationTTL    time.Duration
	LowStockThreshold int
}

// InventoryService implements the business logic for inventory operations.
type InventoryService struct {
	products     repository.ProductRepository
	reservations repository.ReservationRepository
	events       EventPublisher
	logger       *slog.Logger
	opts         Options
	now          func() time.Time
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(
	products repository.ProductRepository,
	reservations repository.ReservationRepository,
	events EventPublisher,
	logger *slog.Logger,
	opts Options,
) *InventoryService {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = 15 * time.Minute
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = DefaultLowStockThreshold
	}
	return &InventoryService{
		products:     products,
		reservations: reservations,
		events:       events,
		logger:       logger,
		opts:         opts,
		now:          time.Now,
	}
}

// ListProducts returns a page of active products.
func (s *InventoryService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = pagination.DefaultLimit
	}
	filter.Limit = min(filter.Limit, pagination.MaxLimit)
	filter.Offset = max(filter.Offset, 0)

	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// GetProduct retrieves a product by ID.
func (s *InventoryService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetProductBySKU retrieves a product by SKU.
func (s *InventoryService) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := s.products.GetBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("get product by sku: %w", err)
	}
	return p, nil
}

// GetStock returns the stock view of a product.
func (s *InventoryService) GetStock(ctx context.Context, id string) (*domain.StockInfo, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	info := p.Stock()
	return &info, nil
}

// UpdateStock applies a stock operation and publishes the new level. A
// low-stock event follows when the level ends at or below the threshold.
func (s *InventoryService) UpdateStock(ctx context.Context, id string, op domain.StockOperation, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must be non-negative")
	}

	p, err := s.products.UpdateStock(ctx, id, op, quantity)
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	s.logger.InfoContext(ctx, "stock updated",
		slog.String("product_id", p.ID),
		slog.String("sku", p.SKU),
		slog.String("operation", string(op)),
		slog.Int("quantity", quantity),
		slog.Int("stock_level", p.StockLevel),
	)

	if err := s.events.PublishStockUpdated(ctx, p); err != nil {
		s.logPublishError(ctx, "inventory.stock_updated", p.ID, err)
	}
	s.checkLowStock(ctx, p)
	return p, nil
}

// ListLowStock returns active products at or below threshold. A zero
// threshold selects the configured default.
func (s *InventoryService) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	if threshold < 0 {
		return nil, apperrors.InvalidInput("threshold must be non-negative")
	}
	if threshold == 0 {
		threshold = s.opts.LowStockThreshold
	}

	products, err := s.products.ListLowStock(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return products, nil
}

// Reserve holds quantity units of a product for the reservation TTL.
func (s *InventoryService) Reserve(ctx context.Context, productID string, quantity int) (*domain.Reservation, error) {
	if quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be positive")
	}

	now := s.now().UTC()
	res := &domain.Reservation{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		Status:    domain.ReservationReserved,
		ExpiresAt: now.Add(s.opts.ReservationTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	p, err := s.reservations.Reserve(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	s.logger.InfoContext(ctx, "stock reserved",
		slog.String("reservation_id", res.ID),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
		slog.Int("available", p.Available()),
	)

	if err := s.events.PublishReservation(ctx, res); err != nil {
		s.logPublishError(ctx, "inventory.reserved", res.ID, err)
	}
	return res, nil
}

// GetReservation retrieves a reservation by ID.
func (s *InventoryService) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	res, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// ReleaseReservation returns held stock. Releasing an already released or
// expired reservation succeeds without changes.
func (s *InventoryService) ReleaseReservation(ctx context.Context, id string) (*domain.Settlement, error) {
	settlement, err := s.reservations.Release(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("release reservation: %w", err)
	}
	s.settled(ctx, settlement)
	return settlement, nil
}

// ConfirmReservation deducts held stock from the stock level. Confirming
// twice succeeds without changes.
func (s *InventoryService) ConfirmReservation(ctx context.Context, id string) (*domain.Settlement, error) {
	settlement, err := s.reservations.Confirm(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}
	s.settled(ctx, settlement)
	if settlement.Changed {
		s.checkLowStock(ctx, settlement.Product)
	}
	return settlement, nil
}

// ExpireReservations releases holding reservations past their expiry and
// returns how many were expired. Failures are logged and skipped.
func (s *InventoryService) ExpireReservations(ctx context.Context) (int, error) {
	expired, err := s.reservations.ListExpired(ctx, expiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}

	count := 0
	for i := range expired {
		settlement, err := s.reservations.Expire(ctx, expired[i].ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire reservation",
				slog.String("reservation_id", expired[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.settled(ctx, settlement)
		if settlement.Changed {
			count++
		}
	}

	if count > 0 {
		s.logger.InfoContext(ctx, "expired reservations released",
			slog.Int("expired_count", count),
			slog.Int("candidates", len(expired)),
		)
	}
	return count, nil
}

// RunExpirySweeper calls ExpireReservations every interval until ctx ends.
func (s *InventoryService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireReservations(ctx); err != nil {
				s.logger.ErrorContext(ctx, "reservation expiry sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *InventoryService) settled(ctx context.Context, settlement *domain.Settlement) {
	res := settlement.Reservation
	if !settlement.Changed {
		s.logger.DebugContext(ctx, "reservation already settled",
			slog.String("reservation_id", res.ID),
			slog.String("status", string(res.Status)),
		)
		return
	}

	s.logger.InfoContext(ctx, "reservation settled",
		slog.String("reservation_id", res.ID),
		slog.String("product_id", res.ProductID),
		slog.String("status", string(res.Status)),
		slog.Int("quantity", res.Quantity),
	)
	if err := s.events.PublishReservation(ctx, res); err != nil {
		s.logPublishError(ctx, "inventory."+string(res.Status), res.ID, err)
	}
}

func (s *InventoryService) checkLowStock(ctx context.Context, p *domain.Product) {
	if p == nil || !p.Active || p.StockLevel > s.opts.LowStockThreshold {
		return
	}
	s.logger.WarnContext(ctx, "product stock is low",
		slog.String("product_id", p.ID),
		slog.String("sku", p.SKU),
		slog.Int("stock_level", p.StockLevel),
		slog.Int("threshold", s.opts.LowStockThreshold),
	)
	if err := s.events.PublishLowStock(ctx, p, s.opts.LowStockThreshold); err != nil {
		s.logPublishError(ctx, "inventory.low_stock", p.ID, err)
	}
}

// logPublishError records a failed event publish. Publishing is best effort;
// the database change has already committed.
func (s *InventoryService) logPublishError(ctx context.Context, eventType, id string, err error) {
	s.logger.ErrorContext(ctx, "failed to publish event",
		slog.String("event_type", eventType),
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
}
