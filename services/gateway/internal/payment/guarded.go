package payment

import (
	"context"
	"errors"

	"github.com/hellodd/orderflow/pkg/breaker"
	apperrors "github.com/hellodd/orderflow/pkg/errors"
)

// Classify is the outcome classifier for the payment breaker. A decline or
// a rejected request is an answer from a working provider and counts as a
// success; cancellation is ignored and everything else is a failure.
func Classify(err error) breaker.Outcome {
	if errors.Is(err, apperrors.ErrPaymentFailed) || errors.Is(err, apperrors.ErrInvalidInput) {
		return breaker.OutcomeSuccess
	}
	return breaker.DefaultClassify(err)
}

// Guarded routes every provider call through a circuit breaker.
type Guarded struct {
	next Provider
	cb   *breaker.CircuitBreaker
}

// NewGuarded wraps next with cb.
func NewGuarded(next Provider, cb *breaker.CircuitBreaker) *Guarded {
	return &Guarded{next: next, cb: cb}
}

// Name returns the wrapped provider's name.
func (g *Guarded) Name() string {
	return g.next.Name()
}

// Charge charges through the breaker.
func (g *Guarded) Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error) {
	return breaker.Execute(ctx, g.cb, func(ctx context.Context) (*ChargeResult, error) {
		return g.next.Charge(ctx, input)
	})
}

// Refund refunds through the breaker.
func (g *Guarded) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	return breaker.Execute(ctx, g.cb, func(ctx context.Context) (*RefundResult, error) {
		return g.next.Refund(ctx, input)
	})
}
