package domain

import (
	"time"
)

// ReservationStatus is the lifecycle position of a reservation.
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationReleased  ReservationStatus = "released"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a hold on Quantity units of a product, taken by the
// checkout saga and later either confirmed or released.
type Reservation struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Holding reports whether the reservation still holds stock.
func (r *Reservation) Holding() bool {
	return r.Status == ReservationReserved
}

// Released reports whether the held stock has already been returned.
func (r *Reservation) Released() bool {
	return r.Status == ReservationReleased || r.Status == ReservationExpired
}

// IsExpired reports whether a holding reservation has outlived its TTL.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Holding() && now.After(r.ExpiresAt)
}

// Settlement is the outcome of releasing, confirming or expiring a
// reservation. Changed is false when the reservation was already in the
// requested end state and nothing was written.
type Settlement struct {
	Reservation *Reservation `json:"reservation"`
	Product     *Product     `json:"product,omitempty"`
	Changed     bool         `json:"changed"`
}
