package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
)

// DeclinedMethod is a payment method the mock provider always declines.
const DeclinedMethod = "card_declined"

// ErrProviderUnavailable is returned when the mock provider simulates an
// outage. It counts against the payment breaker.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// MockConfig tunes the simulated provider.
type MockConfig struct {
	// FailureRate is the probability in [0,1] that a charge fails with
	// ErrProviderUnavailable.
	FailureRate float64
	// RefundFailureRate is the same for refunds.
	RefundFailureRate float64
	// Latency is added to every call.
	Latency time.Duration
}

// MockProvider simulates a payment processor for development and tests.
type MockProvider struct {
	cfg  MockConfig
	roll func() float64
}

// NewMockProvider creates a new mock payment provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	return &MockProvider{cfg: cfg, roll: rand.Float64}
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return "mock"
}

// Charge simulates a payment charge. DeclinedMethod is rejected with a
// PAYMENT_FAILED error that does not count as a provider failure.
func (p *MockProvider) Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if input.AmountCents <= 0 {
		return nil, apperrors.InvalidInput("charge amount must be positive")
	}
	if input.Method == DeclinedMethod {
		return nil, apperrors.PaymentFailed("card declined")
	}
	if p.roll() < p.cfg.FailureRate {
		return nil, fmt.Errorf("charge %d cents: %w", input.AmountCents, ErrProviderUnavailable)
	}

	return &ChargeResult{
		PaymentID:   "mock_pay_" + uuid.NewString(),
		Status:      StatusSucceeded,
		AmountCents: input.AmountCents,
	}, nil
}

// Refund simulates a payment refund.
func (p *MockProvider) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if input.PaymentID == "" {
		return nil, apperrors.InvalidInput("payment id is required")
	}
	if p.roll() < p.cfg.RefundFailureRate {
		return nil, fmt.Errorf("refund %s: %w", input.PaymentID, ErrProviderUnavailable)
	}

	return &RefundResult{
		RefundID: "mock_ref_" + uuid.NewString(),
		Status:   StatusSucceeded,
	}, nil
}

func (p *MockProvider) wait(ctx context.Context) error {
	if p.cfg.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.cfg.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
