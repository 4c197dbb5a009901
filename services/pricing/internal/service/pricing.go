package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/services/pricing/internal/domain"
)

// Options tunes the pricing service.
type Options struct {
	Rules     []domain.Rule
	CacheSize int
	CacheTTL  time.Duration
}

// PricingService computes quotes and caches them per normalized request.
type PricingService struct {
	rules  []domain.Rule
	cache  *expirable.LRU[string, domain.Quote]
	logger *slog.Logger
}

// NewPricingService creates a new pricing service. Zero options fall back
// to the default rule set and a 1024-entry cache with a 5 minute TTL.
func NewPricingService(logger *slog.Logger, opts Options) *PricingService {
	if len(opts.Rules) == 0 {
		opts.Rules = domain.DefaultRules()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &PricingService{
		rules:  opts.Rules,
		cache:  expirable.NewLRU[string, domain.Quote](opts.CacheSize, nil, opts.CacheTTL),
		logger: logger,
	}
}

// Quote prices a request.
func (s *PricingService) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	if req.Quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be positive")
	}
	if req.UnitPriceCents < 0 {
		return nil, apperrors.InvalidInput("unit price must not be negative")
	}

	req = req.Normalize()
	key := req.CacheKey()
	if cached, ok := s.cache.Get(key); ok {
		quoteCacheLookups.WithLabelValues("hit").Inc()
		return cloneQuote(cached), nil
	}
	quoteCacheLookups.WithLabelValues("miss").Inc()

	quote, err := domain.Calculate(req, s.rules)
	if err != nil {
		var unknown *domain.ErrUnknownPromoCode
		if errors.As(err, &unknown) {
			return nil, apperrors.InvalidInput(unknown.Error())
		}
		return nil, err
	}
	quotesCalculated.Inc()
	for _, d := range quote.Discounts {
		discountCents.WithLabelValues(d.Code).Add(float64(d.AmountCents))
	}

	s.cache.Add(key, *cloneQuote(*quote))

	s.logger.InfoContext(ctx, "quote calculated",
		slog.String("product_id", quote.ProductID),
		slog.Int("quantity", quote.Quantity),
		slog.Int64("subtotal_cents", quote.SubtotalCents),
		slog.Int64("discount_total_cents", quote.DiscountTotalCents),
		slog.Bool("capped", quote.Capped),
	)

	return quote, nil
}

// Rules returns the active rule set.
func (s *PricingService) Rules() []domain.Rule {
	return slices.Clone(s.rules)
}

// CachedQuotes reports the number of live cache entries.
func (s *PricingService) CachedQuotes() int {
	return s.cache.Len()
}

func cloneQuote(q domain.Quote) *domain.Quote {
	q.Discounts = slices.Clone(q.Discounts)
	return &q
}
