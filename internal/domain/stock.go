package domain

import "time"

// Product is a catalog entry with its authoritative stock level.
type Product struct {
	ID               string
	Name             string
	Category         string
	Price            int64
	StockQuantity    int
	ReservedQuantity int
	IsActive         bool
	UpdatedAt        time.Time
}

// Available returns the quantity not held by active reservations.
func (p Product) Available() int {
	available := p.StockQuantity - p.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// StockLine pairs a product with a quantity.
type StockLine struct {
	ProductID string
	Quantity  int
}

// Reservation statuses.
const (
	ReservationStatusReserved  = "reserved"
	ReservationStatusCommitted = "committed"
	ReservationStatusReleased  = "released"
	ReservationStatusExpired   = "expired"
)

// StockReservation is a time-bounded hold on stock taken during checkout.
type StockReservation struct {
	ID          string
	Items       []StockLine
	Status      string
	OwnerID     string
	Reason      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ReleasedAt  *time.Time
	CommittedAt *time.Time
}

// Active reports whether the hold still counts against availability at now.
func (r StockReservation) Active(now time.Time) bool {
	return r.Status == ReservationStatusReserved && now.Before(r.ExpiresAt)
}
