// Package payment defines the payment provider the checkout saga charges
// and refunds through.
package payment

import (
	"context"
)

// StatusSucceeded is the status of a settled charge or refund.
const StatusSucceeded = "succeeded"

// ChargeInput holds the parameters for charging a payment.
type ChargeInput struct {
	OrderID     string
	AmountCents int64
	Currency    string
	Method      string
	Description string
}

// ChargeResult holds the result of a charge operation.
type ChargeResult struct {
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}

// RefundInput holds the parameters for refunding a payment.
type RefundInput struct {
	PaymentID   string
	AmountCents int64
	Reason      string
}

// RefundResult holds the result of a refund operation.
type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// Provider defines the interface for payment provider integrations.
type Provider interface {
	// Name returns the provider name (e.g., "mock", "stripe").
	Name() string

	// Charge processes a payment charge through the provider.
	Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error)

	// Refund processes a refund through the provider.
	Refund(ctx context.Context, input *RefundInput) (*RefundResult, error)
}
