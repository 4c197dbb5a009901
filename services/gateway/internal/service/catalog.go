package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/services/gateway/internal/cache"
	"github.com/hellodd/orderflow/services/gateway/internal/client"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
)

const (
	// DefaultListLimit is the listing size when the caller does not pass one.
	DefaultListLimit = 10
	// MaxListLimit caps listing requests.
	MaxListLimit = 100
)

// fallbackCatalog is served when inventory is unavailable and nothing is
// cached. Stock is unknown, so nothing is reported as available.
var fallbackCatalog = []domain.ProductView{
	{ID: "fallback-1", SKU: "MOCK-001", Name: "Mock Product 1", PriceCents: 1999},
	{ID: "fallback-2", SKU: "MOCK-002", Name: "Mock Product 2", PriceCents: 4999},
	{ID: "fallback-3", SKU: "MOCK-003", Name: "Mock Product 3", PriceCents: 9999},
	{ID: "fallback-4", SKU: "MOCK-004", Name: "Mock Product 4", PriceCents: 24999},
	{ID: "fallback-5", SKU: "MOCK-005", Name: "Mock Product 5", PriceCents: 79999},
}

// CatalogService serves product reads with caching and graceful degradation.
type CatalogService struct {
	inventory Inventory
	cache     ListingCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(inventory Inventory, cache ListingCache, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		inventory: inventory,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// ListProducts returns up to limit products. A fresh cache entry wins;
// otherwise inventory is asked through its breaker. When inventory is
// unavailable the last stale listing is served, then a static fallback
// catalog, and the result is flagged as a fallback.
func (s *CatalogService) ListProducts(ctx context.Context, limit int) (*domain.ProductList, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	entry, err := s.cache.Get(ctx, limit)
	switch {
	case err == nil:
		return s.listing(entry.Products, domain.SourceCache), nil
	case !errors.Is(err, cache.ErrMiss):
		s.logger.WarnContext(ctx, "product cache read failed", slog.String("error", err.Error()))
	}

	products, err := s.inventory.ListProducts(ctx, limit)
	if err != nil {
		if !degradable(err) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "inventory unavailable, serving degraded product list",
			slog.String("error", err.Error()),
			slog.String("kind", string(apperrors.KindOf(err))),
		)
		return s.degraded(ctx, limit), nil
	}

	views := make([]domain.ProductView, 0, len(products))
	for i := range products {
		views = append(views, toView(&products[i]))
	}
	if err := s.cache.Set(ctx, limit, views, s.now()); err != nil {
		s.logger.WarnContext(ctx, "product cache write failed", slog.String("error", err.Error()))
	}
	return s.listing(views, domain.SourceInventory), nil
}

// GetProduct returns one product through the inventory breaker.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.ProductView, error) {
	p, err := s.inventory.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	v := toView(p)
	return &v, nil
}

func (s *CatalogService) degraded(ctx context.Context, limit int) *domain.ProductList {
	entry, err := s.cache.GetStale(ctx, limit)
	if err == nil {
		list := s.listing(entry.Products, domain.SourceStaleCache)
		list.Fallback = true
		return list
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.WarnContext(ctx, "stale product cache read failed", slog.String("error", err.Error()))
	}

	n := min(limit, len(fallbackCatalog))
	views := make([]domain.ProductView, n)
	for i, p := range fallbackCatalog[:n] {
		p.DiscountedPriceCents = domain.ListingDiscount(p.PriceCents)
		views[i] = p
	}
	list := s.listing(views, domain.SourceFallback)
	list.Fallback = true
	return list
}

func (s *CatalogService) listing(products []domain.ProductView, source string) *domain.ProductList {
	productListings.WithLabelValues(source).Inc()
	return &domain.ProductList{
		Products:  products,
		Source:    source,
		Cached:    source == domain.SourceCache || source == domain.SourceStaleCache,
		Timestamp: s.now().UTC(),
	}
}

// degradable reports whether a failed inventory call should fall back
// rather than surface to the client.
func degradable(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindCircuitOpen, apperrors.KindDownstream:
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func toView(p *client.Product) domain.ProductView {
	return domain.ProductView{
		ID:                   p.ID,
		SKU:                  p.SKU,
		Name:                 p.Name,
		StockLevel:           p.StockLevel,
		AvailableStock:       p.Available(),
		PriceCents:           p.PriceCents,
		DiscountedPriceCents: domain.ListingDiscount(p.PriceCents),
	}
}
