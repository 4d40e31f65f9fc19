package reservation

import (
	"context"
	"strings"
	"time"

	"github.com/elena-risteska/parter-be/internal/model"
)

// SeatAssignment pairs a held seat label with the reservation holding
// it.  It is the unit of the public seat-map projection.
type SeatAssignment struct {
	Seat          string `json:"seat"`
	ReservationID uint64 `json:"reservation_id"`
}

// Tx is the transaction-scoped capability the engine needs from the
// store.  Every method runs inside the transaction opened by
// Store.InTx; LockPlay is the serialization point and must be called
// before any availability read.
type Tx interface {
	// LockPlay takes a locking read of the play row and returns its
	// per-seat price in cents.  Concurrent transactions targeting the
	// same play block here until commit or rollback; transactions on
	// different plays never contend.  Returns ErrPlayNotFound when the
	// play does not exist.
	LockPlay(ctx context.Context, playID uint64) (uint32, error)

	// ExpireDueForPlay transitions the play's PENDING reservations
	// whose expires_at is not after now to EXPIRED, returning how many
	// rows were flipped.  Idempotent.
	ExpireDueForPlay(ctx context.Context, playID uint64, now time.Time) (int64, error)

	// ActiveReservation returns the id of the user's live (PENDING or
	// CONFIRMED) reservation for the play, if one exists.
	ActiveReservation(ctx context.Context, userID, playID uint64) (uint64, bool, error)

	// HeldSeats returns seat label -> reservation id for every live
	// reservation of the play, optionally excluding one reservation id
	// (pass 0 to exclude nothing).
	HeldSeats(ctx context.Context, playID, excludeID uint64) (map[string]uint64, error)

	// GetOwned loads a reservation by id with a locking read, or nil
	// when it does not exist or belongs to a different user.
	GetOwned(ctx context.Context, reservationID, userID uint64) (*model.Reservation, error)

	// Insert persists a new reservation and its seat rows, populating
	// the generated id on the passed record.
	Insert(ctx context.Context, res *model.Reservation) error

	// UpdateSeats replaces a reservation's seat set and total price.
	UpdateSeats(ctx context.Context, reservationID uint64, seats []string, totalCents uint32) error
}

// Store is the durable reservation store.  InTx runs fn inside one
// transaction and commits only when fn returns nil; any error rolls
// the whole transaction back, so failed operations never leave partial
// writes.  The remaining methods are single-statement operations that
// do not need the locking transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// CancelOwned flips the user's reservation to CANCELLED if it is
	// currently live, reporting whether a row was affected.
	CancelOwned(ctx context.Context, reservationID, userID uint64) (bool, error)

	// ExpireDue sweeps every PENDING reservation past its expiry,
	// across all plays.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	// ReservedSeats is the non-locking display projection: every seat
	// currently held on the play, with its reservation.  Pending rows
	// past their expiry are filtered out even before a sweep runs.
	ReservedSeats(ctx context.Context, playID uint64, now time.Time) ([]SeatAssignment, error)
}

// Engine is the reservation lifecycle manager.  It owns no state of
// its own; correctness under concurrency comes entirely from the
// store's per-play locking read.
type Engine struct {
	store Store
	clock Clock
	ttl   time.Duration
}

// NewEngine builds an Engine.  ttl is how long a PENDING reservation
// holds its seats before the sweeper may reclaim them.
func NewEngine(store Store, clock Clock, ttl time.Duration) *Engine {
	if store == nil || clock == nil {
		panic("nil dependency passed to NewEngine")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Engine{store: store, clock: clock, ttl: ttl}
}

// TTL returns the configured reservation time-to-live.
func (e *Engine) TTL() time.Duration { return e.ttl }

// Create reserves seats on a play for a user.  The whole operation is
// one transaction: lock the play row, sweep the play's stale holds,
// enforce per-user uniqueness, check seat availability, insert.  On
// success the persisted reservation is returned in status PENDING with
// expires_at = now + TTL.
func (e *Engine) Create(ctx context.Context, userID, playID uint64, seats []string) (*model.Reservation, error) {
	if playID == 0 {
		return nil, ErrInvalidRequest
	}
	cleaned, err := normalizeSeats(seats)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now().UTC()

	var out *model.Reservation
	err = e.store.InTx(ctx, func(tx Tx) error {
		price, err := tx.LockPlay(ctx, playID)
		if err != nil {
			return err
		}
		// Stale holds must not block new reservations: sweep this
		// play before reading availability.
		if _, err := tx.ExpireDueForPlay(ctx, playID, now); err != nil {
			return err
		}
		if _, exists, err := tx.ActiveReservation(ctx, userID, playID); err != nil {
			return err
		} else if exists {
			return ErrDuplicateReservation
		}
		held, err := tx.HeldSeats(ctx, playID, 0)
		if err != nil {
			return err
		}
		if conflicts := overlap(cleaned, held); len(conflicts) > 0 {
			return &SeatConflictError{Seats: conflicts}
		}
		res := &model.Reservation{
			UserID:     userID,
			PlayID:     playID,
			Seats:      cleaned,
			Status:     model.StatusPending,
			TotalCents: price * uint32(len(cleaned)),
			CreatedAt:  now,
			ExpiresAt:  now.Add(e.ttl),
		}
		if err := tx.Insert(ctx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSeats replaces the seat set of the caller's PENDING,
// unexpired reservation.  The total is recomputed from the play's
// current price; expires_at is deliberately left unchanged, so an
// update does not extend the hold.
func (e *Engine) UpdateSeats(ctx context.Context, reservationID, userID uint64, seats []string) (*model.Reservation, error) {
	cleaned, err := normalizeSeats(seats)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now().UTC()

	var out *model.Reservation
	err = e.store.InTx(ctx, func(tx Tx) error {
		res, err := tx.GetOwned(ctx, reservationID, userID)
		if err != nil {
			return err
		}
		// One opaque error for missing, foreign, terminal and expired
		// reservations alike.
		if res == nil || res.Status != model.StatusPending || !res.ExpiresAt.After(now) {
			return ErrNotModifiable
		}
		price, err := tx.LockPlay(ctx, res.PlayID)
		if err != nil {
			return err
		}
		if _, err := tx.ExpireDueForPlay(ctx, res.PlayID, now); err != nil {
			return err
		}
		held, err := tx.HeldSeats(ctx, res.PlayID, res.ID)
		if err != nil {
			return err
		}
		if conflicts := overlap(cleaned, held); len(conflicts) > 0 {
			return &SeatConflictError{Seats: conflicts}
		}
		total := price * uint32(len(cleaned))
		if err := tx.UpdateSeats(ctx, res.ID, cleaned, total); err != nil {
			return err
		}
		res.Seats = cleaned
		res.TotalCents = total
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel transitions the caller's live reservation to CANCELLED.
// Releasing seats is always safe, so this skips the locking
// transaction entirely.  Cancelling a reservation that is missing, not
// owned, or already terminal returns ErrNotFound — never a silent
// success.
func (e *Engine) Cancel(ctx context.Context, reservationID, userID uint64) error {
	ok, err := e.store.CancelOwned(ctx, reservationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SweepExpired flips every overdue PENDING reservation to EXPIRED.
// Safe to run concurrently and repeatedly; a second run finds nothing
// to do.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	return e.store.ExpireDue(ctx, e.clock.Now().UTC())
}

// ReservedSeats returns the seats currently held on a play together
// with the reservation holding each one.  This is a display read:
// no locks, eventual consistency is fine, the authoritative check
// happens inside Create/UpdateSeats.
func (e *Engine) ReservedSeats(ctx context.Context, playID uint64) ([]SeatAssignment, error) {
	if playID == 0 {
		return nil, ErrInvalidRequest
	}
	return e.store.ReservedSeats(ctx, playID, e.clock.Now().UTC())
}

// normalizeSeats trims labels and validates the request: the list must
// be non-empty and contain no blank or repeated labels.  Order is
// preserved.
func normalizeSeats(seats []string) ([]string, error) {
	if len(seats) == 0 {
		return nil, ErrInvalidRequest
	}
	out := make([]string, 0, len(seats))
	seen := make(map[string]struct{}, len(seats))
	for _, s := range seats {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, ErrInvalidRequest
		}
		if _, dup := seen[s]; dup {
			return nil, ErrInvalidRequest
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// overlap returns the requested seats that are already held, in
// request order.
func overlap(requested []string, held map[string]uint64) []string {
	var conflicts []string
	for _, s := range requested {
		if _, taken := held[s]; taken {
			conflicts = append(conflicts, s)
		}
	}
	return conflicts
}
