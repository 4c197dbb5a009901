package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hellodd/orderflow/services/gateway/internal/cache"
	"github.com/hellodd/orderflow/services/gateway/internal/client"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
	"github.com/hellodd/orderflow/services/gateway/internal/payment"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockInventory struct {
	mock.Mock
}

func (m *mockInventory) ListProducts(ctx context.Context, limit int) ([]client.Product, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]client.Product), args.Error(1)
}

func (m *mockInventory) GetProduct(ctx context.Context, id string) (*client.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Product), args.Error(1)
}

func (m *mockInventory) Reserve(ctx context.Context, productID string, quantity int) (*client.Reservation, error) {
	args := m.Called(ctx, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Reservation), args.Error(1)
}

func (m *mockInventory) Release(ctx context.Context, reservationID string) (*client.Settlement, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Settlement), args.Error(1)
}

func (m *mockInventory) Confirm(ctx context.Context, reservationID string) (*client.Settlement, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Settlement), args.Error(1)
}

type mockPricing struct {
	mock.Mock
}

func (m *mockPricing) Quote(ctx context.Context, req client.QuoteRequest) (*client.Quote, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Quote), args.Error(1)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Name() string { return "mock" }

func (m *mockPayments) Charge(ctx context.Context, in *payment.ChargeInput) (*payment.ChargeResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ChargeResult), args.Error(1)
}

func (m *mockPayments) Refund(ctx context.Context, in *payment.RefundInput) (*payment.RefundResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.RefundResult), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, limit int) (*cache.Entry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cache.Entry), args.Error(1)
}

func (m *mockCache) GetStale(ctx context.Context, limit int) (*cache.Entry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cache.Entry), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, limit int, products []domain.ProductView, now time.Time) error {
	return m.Called(ctx, limit, products, now).Error(0)
}
