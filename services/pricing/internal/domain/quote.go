package domain

import (
	"fmt"
	"strings"
)

// RuleKind groups pricing rules. At most one rule per kind applies to a quote.
type RuleKind string

const (
	RuleKindVolume RuleKind = "volume"
	RuleKindTier   RuleKind = "tier"
	RuleKindPromo  RuleKind = "promo"
)

// TierPremium is the only customer tier that earns a discount.
const TierPremium = "premium"

// MaxDiscountBP caps the combined discount at 50% of the subtotal.
const MaxDiscountBP = 5000

// Rule is a percentage discount. PercentBP is in basis points: 1000 = 10%.
type Rule struct {
	Code        string   `json:"code"`
	Kind        RuleKind `json:"kind"`
	Description string   `json:"description"`
	PercentBP   int64    `json:"percent_bp"`
	MinQuantity int      `json:"min_quantity,omitempty"`
	Tier        string   `json:"tier,omitempty"`
	PromoCode   string   `json:"promo_code,omitempty"`
}

// Discount is a rule applied to a quote.
type Discount struct {
	Code        string   `json:"code"`
	Kind        RuleKind `json:"kind"`
	Description string   `json:"description"`
	PercentBP   int64    `json:"percent_bp"`
	AmountCents int64    `json:"amount_cents"`
}

// QuoteRequest is the input to a price calculation.
type QuoteRequest struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	CustomerTier   string `json:"customer_tier,omitempty"`
	PromoCode      string `json:"promo_code,omitempty"`
}

// Normalize upper-cases the promo code and lower-cases the tier so that
// equivalent requests share a cache key.
func (r QuoteRequest) Normalize() QuoteRequest {
	r.CustomerTier = strings.ToLower(strings.TrimSpace(r.CustomerTier))
	r.PromoCode = strings.ToUpper(strings.TrimSpace(r.PromoCode))
	return r
}

// CacheKey identifies a normalized request.
func (r QuoteRequest) CacheKey() string {
	return fmt.Sprintf("%s|%s|%d|%d|%s|%s",
		r.ProductID, r.SKU, r.UnitPriceCents, r.Quantity, r.CustomerTier, r.PromoCode)
}

// Quote is the priced result of a QuoteRequest.
type Quote struct {
	ProductID          string     `json:"product_id"`
	SKU                string     `json:"sku,omitempty"`
	UnitPriceCents     int64      `json:"unit_price_cents"`
	Quantity           int        `json:"quantity"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	Discounts          []Discount `json:"discounts"`
	DiscountTotalCents int64      `json:"discount_total_cents"`
	TotalCents         int64      `json:"total_cents"`
	Capped             bool       `json:"capped"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{Code: "VOLUME_10", Kind: RuleKindVolume, Description: "5% off 10 or more units", PercentBP: 500, MinQuantity: 10},
		{Code: "VOLUME_50", Kind: RuleKindVolume, Description: "10% off 50 or more units", PercentBP: 1000, MinQuantity: 50},
		{Code: "TIER_PREMIUM", Kind: RuleKindTier, Description: "10% off for premium customers", PercentBP: 1000, Tier: TierPremium},
		{Code: "PROMO_SAVE10", Kind: RuleKindPromo, Description: "10% off with code SAVE10", PercentBP: 1000, PromoCode: "SAVE10"},
		{Code: "PROMO_WELCOME5", Kind: RuleKindPromo, Description: "5% off with code WELCOME5", PercentBP: 500, PromoCode: "WELCOME5"},
	}
}

// ErrUnknownPromoCode is returned by Calculate for a promo code no rule matches.
type ErrUnknownPromoCode struct {
	Code string
}

func (e *ErrUnknownPromoCode) Error() string {
	return fmt.Sprintf("unknown promo code %q", e.Code)
}

// Calculate prices req against rules. The best matching volume rule, the
// matching tier rule and the matching promo rule are applied in that order,
// each to the amount left by the previous one. req must be normalized.
func Calculate(req QuoteRequest, rules []Rule) (*Quote, error) {
	subtotal := req.UnitPriceCents * int64(req.Quantity)
	q := &Quote{
		ProductID:      req.ProductID,
		SKU:            req.SKU,
		UnitPriceCents: req.UnitPriceCents,
		Quantity:       req.Quantity,
		SubtotalCents:  subtotal,
		Discounts:      []Discount{},
	}

	applied, err := matchRules(req, rules)
	if err != nil {
		return nil, err
	}

	remaining := subtotal
	for _, rule := range applied {
		amount := percentOf(remaining, rule.PercentBP)
		if amount == 0 {
			continue
		}
		remaining -= amount
		q.Discounts = append(q.Discounts, Discount{
			Code:        rule.Code,
			Kind:        rule.Kind,
			Description: rule.Description,
			PercentBP:   rule.PercentBP,
			AmountCents: amount,
		})
	}

	total := subtotal - remaining
	if limit := percentOf(subtotal, MaxDiscountBP); total > limit {
		trimDiscounts(q.Discounts, total-limit)
		total = limit
		q.Capped = true
	}

	q.DiscountTotalCents = total
	q.TotalCents = subtotal - total
	return q, nil
}

func matchRules(req QuoteRequest, rules []Rule) ([]Rule, error) {
	var volume, tier, promo *Rule
	for i := range rules {
		rule := &rules[i]
		switch rule.Kind {
		case RuleKindVolume:
			if req.Quantity >= rule.MinQuantity && (volume == nil || rule.MinQuantity > volume.MinQuantity) {
				volume = rule
			}
		case RuleKindTier:
			if req.CustomerTier != "" && strings.EqualFold(rule.Tier, req.CustomerTier) {
				tier = rule
			}
		case RuleKindPromo:
			if req.PromoCode != "" && strings.EqualFold(rule.PromoCode, req.PromoCode) {
				promo = rule
			}
		}
	}
	if req.PromoCode != "" && promo == nil {
		return nil, &ErrUnknownPromoCode{Code: req.PromoCode}
	}

	applied := make([]Rule, 0, 3)
	for _, r := range []*Rule{volume, tier, promo} {
		if r != nil {
			applied = append(applied, *r)
		}
	}
	return applied, nil
}

// trimDiscounts removes excess cents starting from the last applied discount.
func trimDiscounts(discounts []Discount, excess int64) {
	for i := len(discounts) - 1; i >= 0 && excess > 0; i-- {
		cut := min(discounts[i].AmountCents, excess)
		discounts[i].AmountCents -= cut
		excess -= cut
	}
}

// percentOf returns amount*bp/10000 rounded half up.
func percentOf(amount, bp int64) int64 {
	return (amount*bp + 5000) / 10000
}
