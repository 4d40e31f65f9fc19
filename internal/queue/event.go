// Package queue defines the messages exchanged over the broker and
// the background consumer that records them.
package queue

// Event kinds published on the reservation.events queue.
const (
	KindReservationCreated   = "reservation.created"
	KindReservationCancelled = "reservation.cancelled"
	KindReservationsExpired  = "reservations.expired"
)

// ReservationEvent describes a change to seat inventory.  It carries
// enough for downstream consumers (audit log, analytics, notification
// triggers) to act without querying the primary database.  Count is
// only meaningful for the expired kind, where one sweep may reclaim
// many reservations.
type ReservationEvent struct {
	ID            string   `json:"id"` // unique message id
	Kind          string   `json:"kind"`
	ReservationID uint64   `json:"reservation_id,omitempty"`
	UserID        uint64   `json:"user_id,omitempty"`
	PlayID        uint64   `json:"play_id,omitempty"`
	Seats         []string `json:"seats,omitempty"`
	TotalCents    uint32   `json:"total_cents,omitempty"`
	Count         int64    `json:"count,omitempty"`
	OccurredAt    string   `json:"occurred_at"` // RFC3339 UTC
}
