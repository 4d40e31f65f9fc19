// Package reservation implements the seat-inventory reservation engine:
// the state machine that decides, under concurrent access, whether a
// requested set of seats for a play can be granted, enforces the
// one-active-reservation-per-user-per-play rule, and reclaims seats
// from reservations that age out.
//
// The engine is stateless over a Store; all isolation comes from the
// store's transactions, so any number of service instances can share
// one database.
package reservation

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the engine.  Handlers translate these
// into HTTP responses with errors.Is.
var (
	// ErrInvalidRequest means the input itself was malformed: missing
	// play, empty seat list, blank or duplicate seat labels.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPlayNotFound means the target play does not exist.
	ErrPlayNotFound = errors.New("play not found")

	// ErrDuplicateReservation means the user already holds a live
	// (PENDING or CONFIRMED) reservation for this play.
	ErrDuplicateReservation = errors.New("user already has a reservation for this play")

	// ErrNotModifiable covers every reason an update must be refused:
	// reservation missing, owned by someone else, expired, or already
	// in a terminal status.  The cases are deliberately collapsed so
	// the response does not leak which one applied.
	ErrNotModifiable = errors.New("reservation is not modifiable")

	// ErrNotFound means a cancel target does not exist, is not owned
	// by the caller, or is already terminal.
	ErrNotFound = errors.New("reservation not found")
)

// SeatConflictError is returned when requested seats overlap seats
// held by other live reservations.  Seats lists the offending labels
// so the client can retry with a different selection.
type SeatConflictError struct {
	Seats []string
}

func (e *SeatConflictError) Error() string {
	return "seats already taken: " + strings.Join(e.Seats, ", ")
}

// TransientError wraps a store failure that left no partial state and
// is safe to retry as a whole: lock wait timeouts, deadlock victims,
// dropped connections.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
