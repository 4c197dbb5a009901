package domain

import "time"

// Checkout saga step names. Other services key off these.
const (
	StepCheckInventory     = "check_inventory"
	StepReserveStock       = "reserve_stock"
	StepCalculatePrice     = "calculate_price"
	StepChargePayment      = "charge_payment"
	StepConfirmReservation = "confirm_reservation"
)

// SagaCheckout is the saga name used for order placement.
const SagaCheckout = "checkout"

// OrderStatusConfirmed is the only status a returned order can have.
const OrderStatusConfirmed = "confirmed"

// PlaceOrderInput is a request to buy one product.
type PlaceOrderInput struct {
	ProductID     string
	Quantity      int
	CustomerTier  string
	PromoCode     string
	PaymentMethod string
	UserID        string
}

// OrderPricing summarizes the quote an order was charged against.
type OrderPricing struct {
	UnitPriceCents     int64 `json:"unit_price_cents"`
	SubtotalCents      int64 `json:"subtotal_cents"`
	DiscountTotalCents int64 `json:"discount_total_cents"`
	TotalCents         int64 `json:"total_cents"`
}

// Order is a completed checkout. Its ID is the saga id.
type Order struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	UserID        string       `json:"user_id,omitempty"`
	ProductID     string       `json:"product_id"`
	SKU           string       `json:"sku"`
	Quantity      int          `json:"quantity"`
	ReservationID string       `json:"reservation_id"`
	PaymentID     string       `json:"payment_id"`
	Pricing       OrderPricing `json:"pricing"`
	Steps         []string     `json:"steps"`
	CreatedAt     time.Time    `json:"created_at"`
}
