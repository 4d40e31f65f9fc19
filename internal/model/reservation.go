package model

import "time"

// Reservation statuses.  PENDING and CONFIRMED both hold their seats;
// CANCELLED and EXPIRED are terminal and are never reopened.  Nothing
// in this service produces CONFIRMED yet — it exists for a downstream
// payment step — but every status check must treat it as live.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// HoldsSeats reports whether a reservation in the given status still
// occupies its seats.
func HoldsSeats(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

// Reservation records a user's claim on a set of seats for a play.
// A reservation is created PENDING with a fixed expiry; it either gets
// cancelled by its owner or swept to EXPIRED once expires_at passes.
// Rows are never physically deleted by the reservation engine.
//
// Seats is the ordered set of seat labels backing the reservation,
// stored in the reservation_seats child table.  TotalCents is always
// the play's current price times the number of seats; it is recomputed
// whenever the seat set changes.
type Reservation struct {
	ID         uint64    `json:"id"`
	UserID     uint64    `json:"user_id"`     // immutable
	PlayID     uint64    `json:"play_id"`     // immutable
	Seats      []string  `json:"seats"`       // insertion order
	Status     string    `json:"status"`
	TotalCents uint32    `json:"total_cents"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"` // set once at creation
}
