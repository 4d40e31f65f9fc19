package model

import "time"

// Play is a scheduled theatre performance with a fixed ticket price
// and a finite seat inventory.  Seats are identified by opaque labels
// (e.g. "A1") rather than by a seat table; the label space is defined
// by the front-of-house seat map and bounded by TotalSeats.
//
// Price is stored in cents and is read fresh on every total
// computation, so changing the price of a play retroactively changes
// the quoted total of any reservation recomputed afterwards.
type Play struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Time        string    `json:"time"` // HH:MM
	DurationMin uint32    `json:"duration_min"`
	Director    string    `json:"director"`
	PriceCents  uint32    `json:"price_cents"` // per seat
	TotalSeats  uint32    `json:"total_seats"`
	CreatedAt   time.Time `json:"created_at"`
}
