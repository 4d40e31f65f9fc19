package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/elena-risteska/parter-be/internal/model"
	"github.com/elena-risteska/parter-be/internal/reservation"
)

// ReservationStore implements reservation.Store over MySQL.  All
// isolation the engine needs comes from InnoDB row locks: InTx opens
// one transaction per engine operation, and the locking read of the
// play row (LockPlay) serializes concurrent transactions per play.
type ReservationStore struct{ db *sql.DB }

func NewReservationStore(db *sql.DB) *ReservationStore { return &ReservationStore{db: db} }

// liveStatuses selects reservations that still hold their seats.
const liveStatuses = `('PENDING','CONFIRMED')`

// classify wraps retryable driver failures in a
// reservation.TransientError so callers can distinguish "try again"
// from genuine faults.  1205 is a lock wait timeout, 1213 a deadlock
// victim; both roll the transaction back cleanly.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == 1205 || myErr.Number == 1213) {
		return &reservation.TransientError{Op: op, Err: err}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &reservation.TransientError{Op: op, Err: err}
	}
	return err
}

// InTx runs fn inside a transaction, committing only when fn returns
// nil.  Engine errors (validation, conflicts) pass through untouched;
// driver errors are classified.
func (s *ReservationStore) InTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&reservationTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	committed = true
	return nil
}

// reservationTx adapts *sql.Tx to the engine's Tx capability.
type reservationTx struct{ tx *sql.Tx }

// LockPlay takes the per-play serialization lock.  FOR UPDATE blocks
// every other transaction that locks the same play row until this one
// commits or rolls back; plays are independent rows, so operations on
// different plays never contend.
func (t *reservationTx) LockPlay(ctx context.Context, playID uint64) (uint32, error) {
	var price uint32
	err := t.tx.QueryRowContext(ctx,
		`SELECT price_cents FROM plays WHERE id = ? FOR UPDATE`, playID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, reservation.ErrPlayNotFound
	}
	if err != nil {
		return 0, classify("lock play", err)
	}
	return price, nil
}

func (t *reservationTx) ExpireDueForPlay(ctx context.Context, playID uint64, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE reservations SET status='EXPIRED' WHERE play_id=? AND status='PENDING' AND expires_at <= ?`,
		playID, now)
	if err != nil {
		return 0, classify("expire play holds", err)
	}
	return res.RowsAffected()
}

func (t *reservationTx) ActiveReservation(ctx context.Context, userID, playID uint64) (uint64, bool, error) {
	var id uint64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM reservations WHERE user_id=? AND play_id=? AND status IN `+liveStatuses+` LIMIT 1`,
		userID, playID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify("active reservation", err)
	}
	return id, true, nil
}

func (t *reservationTx) HeldSeats(ctx context.Context, playID, excludeID uint64) (map[string]uint64, error) {
	q := `SELECT rs.seat_label, rs.reservation_id
	      FROM reservation_seats rs
	      JOIN reservations r ON r.id = rs.reservation_id
	      WHERE r.play_id = ? AND r.status IN ` + liveStatuses
	args := []any{playID}
	if excludeID != 0 {
		q += ` AND r.id <> ?`
		args = append(args, excludeID)
	}
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("held seats", err)
	}
	defer rows.Close()
	held := make(map[string]uint64)
	for rows.Next() {
		var seat string
		var resID uint64
		if err := rows.Scan(&seat, &resID); err != nil {
			return nil, err
		}
		held[seat] = resID
	}
	if err := rows.Err(); err != nil {
		return nil, classify("held seats", err)
	}
	return held, nil
}

func (t *reservationTx) GetOwned(ctx context.Context, reservationID, userID uint64) (*model.Reservation, error) {
	var r model.Reservation
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, play_id, status, total_cents, created_at, expires_at
		 FROM reservations WHERE id=? AND user_id=? FOR UPDATE`,
		reservationID, userID).Scan(&r.ID, &r.UserID, &r.PlayID, &r.Status, &r.TotalCents, &r.CreatedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get reservation", err)
	}
	seats, err := t.seatsOf(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Seats = seats
	return &r, nil
}

func (t *reservationTx) seatsOf(ctx context.Context, reservationID uint64) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT seat_label FROM reservation_seats WHERE reservation_id=? ORDER BY id`, reservationID)
	if err != nil {
		return nil, classify("reservation seats", err)
	}
	defer rows.Close()
	var seats []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func (t *reservationTx) Insert(ctx context.Context, r *model.Reservation) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO reservations (user_id, play_id, status, total_cents, created_at, expires_at)
		 VALUES (?,?,?,?,?,?)`,
		r.UserID, r.PlayID, r.Status, r.TotalCents, r.CreatedAt, r.ExpiresAt)
	if err != nil {
		return classify("insert reservation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = uint64(id)
	return t.insertSeats(ctx, r.ID, r.Seats)
}

// insertSeats bulk-inserts the seat rows in one statement.
func (t *reservationTx) insertSeats(ctx context.Context, reservationID uint64, seats []string) error {
	if len(seats) == 0 {
		return nil
	}
	q := `INSERT INTO reservation_seats (reservation_id, seat_label) VALUES ` +
		strings.TrimSuffix(strings.Repeat("(?,?),", len(seats)), ",")
	args := make([]any, 0, len(seats)*2)
	for _, s := range seats {
		args = append(args, reservationID, s)
	}
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		return classify("insert seats", err)
	}
	return nil
}

func (t *reservationTx) UpdateSeats(ctx context.Context, reservationID uint64, seats []string, totalCents uint32) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE reservations SET total_cents=? WHERE id=?`, totalCents, reservationID); err != nil {
		return classify("update total", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM reservation_seats WHERE reservation_id=?`, reservationID); err != nil {
		return classify("clear seats", err)
	}
	return t.insertSeats(ctx, reservationID, seats)
}

// CancelOwned flips a live reservation of the user to CANCELLED.
// Terminal rows never match, so cancelling twice reports no row.
// This is a single unconditional update and needs no play lock:
// releasing capacity cannot conflict with anything.
func (s *ReservationStore) CancelOwned(ctx context.Context, reservationID, userID uint64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reservations SET status='CANCELLED' WHERE id=? AND user_id=? AND status IN `+liveStatuses,
		reservationID, userID)
	if err != nil {
		return false, classify("cancel", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExpireDue is the global sweep used by the background sweeper.
func (s *ReservationStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reservations SET status='EXPIRED' WHERE status='PENDING' AND expires_at <= ?`, now)
	if err != nil {
		return 0, classify("sweep", err)
	}
	return res.RowsAffected()
}

// ReservedSeats is the display projection: seats of live reservations
// on a play, excluding pending rows already past their expiry so the
// seat map never shows a hold the next sweep will reclaim.  No locks;
// the authoritative check happens inside InTx.
func (s *ReservationStore) ReservedSeats(ctx context.Context, playID uint64, now time.Time) ([]reservation.SeatAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rs.seat_label, rs.reservation_id
		 FROM reservation_seats rs
		 JOIN reservations r ON r.id = rs.reservation_id
		 WHERE r.play_id = ? AND r.status IN `+liveStatuses+`
		   AND (r.status = 'CONFIRMED' OR r.expires_at > ?)
		 ORDER BY rs.reservation_id, rs.id`,
		playID, now)
	if err != nil {
		return nil, classify("reserved seats", err)
	}
	defer rows.Close()
	out := make([]reservation.SeatAssignment, 0)
	for rows.Next() {
		var sa reservation.SeatAssignment
		if err := rows.Scan(&sa.Seat, &sa.ReservationID); err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

// ReservationDetail is a reservation joined with its play for display
// to the owning customer.
type ReservationDetail struct {
	ID         uint64    `json:"id"`
	PlayID     uint64    `json:"play_id"`
	PlayTitle  string    `json:"title"`
	PlayDate   string    `json:"date"`
	PlayTime   string    `json:"time"`
	Status     string    `json:"status"`
	Seats      []string  `json:"seats"`
	TotalCents uint32    `json:"total_cents"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AdminReservationDetail adds the owning user for back-office views.
type AdminReservationDetail struct {
	ReservationDetail
	UserID    uint64 `json:"user_id"`
	UserEmail string `json:"email"`
}

const detailColumns = `r.id, r.play_id, p.title,
	DATE_FORMAT(p.date, '%Y-%m-%d'), TIME_FORMAT(p.time, '%H:%i'),
	r.status, r.total_cents, r.created_at, r.expires_at`

func scanDetail(rows *sql.Rows, d *ReservationDetail, extra ...any) error {
	dest := []any{&d.ID, &d.PlayID, &d.PlayTitle, &d.PlayDate, &d.PlayTime,
		&d.Status, &d.TotalCents, &d.CreatedAt, &d.ExpiresAt}
	return rows.Scan(append(dest, extra...)...)
}

// ListByUser returns the user's reservations, newest first, with
// seats populated in one batch query.
func (s *ReservationStore) ListByUser(ctx context.Context, userID uint64) ([]ReservationDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detailColumns+`
		 FROM reservations r JOIN plays p ON p.id = r.play_id
		 WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]ReservationDetail, 0)
	for rows.Next() {
		var d ReservationDetail
		if err := scanDetail(rows, &d); err != nil {
			return nil, err
		}
		d.Seats = []string{}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := fillSeats(ctx, s.db, len(details), func(i int) uint64 { return details[i].ID },
		func(i int, seat string) { details[i].Seats = append(details[i].Seats, seat) }); err != nil {
		return nil, err
	}
	return details, nil
}

// GetByIDForUser loads one reservation, enforcing ownership in the
// query itself; sql.ErrNoRows covers both missing and foreign rows.
func (s *ReservationStore) GetByIDForUser(ctx context.Context, reservationID, userID uint64) (*ReservationDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detailColumns+`
		 FROM reservations r JOIN plays p ON p.id = r.play_id
		 WHERE r.id = ? AND r.user_id = ?`, reservationID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	var d ReservationDetail
	if err := scanDetail(rows, &d); err != nil {
		return nil, err
	}
	seats, err := s.seatLabels(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Seats = seats
	return &d, nil
}

// ListAll returns every reservation with user and play context, for
// the admin overview.  Newest first.
func (s *ReservationStore) ListAll(ctx context.Context) ([]AdminReservationDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detailColumns+`, u.id, u.email
		 FROM reservations r
		 JOIN plays p ON p.id = r.play_id
		 JOIN users u ON u.id = r.user_id
		 ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]AdminReservationDetail, 0)
	for rows.Next() {
		var d AdminReservationDetail
		if err := scanDetail(rows, &d.ReservationDetail, &d.UserID, &d.UserEmail); err != nil {
			return nil, err
		}
		d.Seats = []string{}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := fillSeats(ctx, s.db, len(details), func(i int) uint64 { return details[i].ID },
		func(i int, seat string) { details[i].Seats = append(details[i].Seats, seat) }); err != nil {
		return nil, err
	}
	return details, nil
}

// fillSeats loads seat labels for a batch of n reservations in a
// single IN query and appends them to their owners in insertion order.
func fillSeats(ctx context.Context, db *sql.DB, n int, idOf func(int) uint64, add func(int, string)) error {
	if n == 0 {
		return nil
	}
	index := make(map[uint64]int, n)
	args := make([]any, 0, n)
	for i := 0; i < n; i++ {
		id := idOf(i)
		index[id] = i
		args = append(args, id)
	}
	q := `SELECT reservation_id, seat_label FROM reservation_seats WHERE reservation_id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(args)), ",") + `) ORDER BY reservation_id, id`
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var resID uint64
		var seat string
		if err := rows.Scan(&resID, &seat); err != nil {
			return err
		}
		if i, ok := index[resID]; ok {
			add(i, seat)
		}
	}
	return rows.Err()
}

// seatLabels returns one reservation's seats in insertion order.
func (s *ReservationStore) seatLabels(ctx context.Context, reservationID uint64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seat_label FROM reservation_seats WHERE reservation_id=? ORDER BY id`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]string, 0)
	for rows.Next() {
		var seat string
		if err := rows.Scan(&seat); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

// DeleteByUser hard-deletes every reservation of a user, seats
// included via the FK cascade.  Profile deletion is the only caller;
// the engine itself never deletes rows.
func (s *ReservationStore) DeleteByUser(ctx context.Context, userID uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE user_id=?`, userID)
	return err
}
