package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/pkg/saga"
	"github.com/hellodd/orderflow/services/gateway/internal/client"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
	"github.com/hellodd/orderflow/services/gateway/internal/payment"
)

// SagaRunner executes a saga and always returns a terminal report.
type SagaRunner interface {
	Run(ctx context.Context, name string, steps []saga.Step) *saga.Report
}

// CheckoutService places orders by running the checkout saga across
// inventory, pricing and payment.
type CheckoutService struct {
	inventory   Inventory
	pricing     Pricing
	payments    payment.Provider
	sagas       SagaRunner
	stepTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewCheckoutService creates a new checkout service. A zero stepTimeout
// leaves steps bounded only by the caller's context.
func NewCheckoutService(
	inventory Inventory,
	pricing Pricing,
	payments payment.Provider,
	sagas SagaRunner,
	stepTimeout time.Duration,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		inventory:   inventory,
		pricing:     pricing,
		payments:    payments,
		sagas:       sagas,
		stepTimeout: stepTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// PlaceOrder runs the checkout saga. The report is returned whenever the
// saga ran, including on failure. The error is the triggering step failure;
// when the rollback itself was incomplete it also carries every
// compensation failure.
func (s *CheckoutService) PlaceOrder(ctx context.Context, in domain.PlaceOrderInput) (*domain.Order, *saga.Report, error) {
	if in.ProductID == "" {
		return nil, nil, apperrors.InvalidInput("product_id is required")
	}
	if in.Quantity <= 0 {
		return nil, nil, apperrors.InvalidInput("quantity must be positive")
	}

	var (
		product     *client.Product
		reservation *client.Reservation
		quote       *client.Quote
		charge      *payment.ChargeResult
	)

	steps := []saga.Step{
		saga.NewStep(domain.StepCheckInventory, bounded(s.stepTimeout, func(ctx context.Context) (*client.Product, error) {
			p, err := s.inventory.GetProduct(ctx, in.ProductID)
			if err != nil {
				return nil, err
			}
			if !p.Active {
				return nil, apperrors.Conflict(fmt.Sprintf("product %s is not available for sale", p.SKU))
			}
			if avail := p.Available(); avail < in.Quantity {
				return nil, apperrors.InsufficientStock(p.SKU, in.Quantity, avail)
			}
			product = p
			return p, nil
		}), nil),

		saga.NewStep(domain.StepReserveStock, bounded(s.stepTimeout, func(ctx context.Context) (*client.Reservation, error) {
			r, err := s.inventory.Reserve(ctx, product.ID, in.Quantity)
			if err != nil {
				return nil, err
			}
			reservation = r
			return r, nil
		}), func(ctx context.Context, r *client.Reservation) error {
			_, err := s.inventory.Release(ctx, r.ID)
			return err
		}),

		saga.NewStep(domain.StepCalculatePrice, bounded(s.stepTimeout, func(ctx context.Context) (*client.Quote, error) {
			q, err := s.pricing.Quote(ctx, client.QuoteRequest{
				ProductID:      product.ID,
				SKU:            product.SKU,
				UnitPriceCents: product.PriceCents,
				Quantity:       in.Quantity,
				CustomerTier:   in.CustomerTier,
				PromoCode:      in.PromoCode,
			})
			if err != nil {
				return nil, err
			}
			quote = q
			return q, nil
		}), nil),

		saga.NewStep(domain.StepChargePayment, bounded(s.stepTimeout, func(ctx context.Context) (*payment.ChargeResult, error) {
			c, err := s.payments.Charge(ctx, &payment.ChargeInput{
				AmountCents: quote.TotalCents,
				Currency:    "USD",
				Method:      in.PaymentMethod,
				Description: fmt.Sprintf("%d x %s", in.Quantity, product.SKU),
			})
			if err != nil {
				return nil, err
			}
			charge = c
			return c, nil
		}), func(ctx context.Context, c *payment.ChargeResult) error {
			_, err := s.payments.Refund(ctx, &payment.RefundInput{
				PaymentID:   c.PaymentID,
				AmountCents: c.AmountCents,
				Reason:      "checkout rolled back",
			})
			return err
		}),

		saga.NewStep(domain.StepConfirmReservation, bounded(s.stepTimeout, func(ctx context.Context) (*client.Settlement, error) {
			return s.inventory.Confirm(ctx, reservation.ID)
		}), nil),
	}

	report := s.sagas.Run(ctx, domain.SagaCheckout, steps)
	ordersPlaced.WithLabelValues(string(report.Status)).Inc()

	if !report.Succeeded() {
		if compErr := report.CompensationErr(); compErr != nil {
			return nil, report, errors.Join(compErr, report.Err)
		}
		return nil, report, report.Err
	}

	order := &domain.Order{
		ID:            report.SagaID,
		Status:        domain.OrderStatusConfirmed,
		UserID:        in.UserID,
		ProductID:     product.ID,
		SKU:           product.SKU,
		Quantity:      in.Quantity,
		ReservationID: reservation.ID,
		PaymentID:     charge.PaymentID,
		Pricing: domain.OrderPricing{
			UnitPriceCents:     quote.UnitPriceCents,
			SubtotalCents:      quote.SubtotalCents,
			DiscountTotalCents: quote.DiscountTotalCents,
			TotalCents:         quote.TotalCents,
		},
		Steps:     report.Attempted,
		CreatedAt: s.now().UTC(),
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("sku", order.SKU),
		slog.Int("quantity", order.Quantity),
		slog.Int64("total_cents", order.Pricing.TotalCents),
	)
	return order, report, nil
}

// bounded applies the per-step timeout to a forward action.
func bounded[T any](timeout time.Duration, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	if timeout <= 0 {
		return fn
	}
	return func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(ctx)
	}
}
