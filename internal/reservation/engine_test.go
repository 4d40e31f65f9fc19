package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elena-risteska/parter-be/internal/model"
)

// fakeClock lets tests move time forward instead of sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory Store used to exercise the engine without a
// database.  It reproduces the store contract the engine relies on:
// LockPlay serializes transactions per play, and an error from the
// transaction function undoes every staged write.
type memStore struct {
	mu     sync.Mutex
	locks  map[uint64]*sync.Mutex
	plays  map[uint64]*model.Play
	res    map[uint64]*model.Reservation
	nextID uint64
}

func newMemStore() *memStore {
	return &memStore{
		locks: make(map[uint64]*sync.Mutex),
		plays: make(map[uint64]*model.Play),
		res:   make(map[uint64]*model.Reservation),
	}
}

func (s *memStore) addPlay(id uint64, priceCents uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays[id] = &model.Play{ID: id, Title: fmt.Sprintf("play-%d", id), PriceCents: priceCents}
}

func (s *memStore) setPrice(id uint64, priceCents uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays[id].PriceCents = priceCents
}

func (s *memStore) lockFor(playID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[playID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[playID] = m
	}
	return m
}

type memTx struct {
	s      *memStore
	locked []*sync.Mutex
	undo   []func()
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	tx := &memTx{s: s}
	err := fn(tx)
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	for _, m := range tx.locked {
		m.Unlock()
	}
	return err
}

func (t *memTx) LockPlay(_ context.Context, playID uint64) (uint32, error) {
	m := t.s.lockFor(playID)
	m.Lock()
	t.locked = append(t.locked, m)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.plays[playID]
	if !ok {
		return 0, ErrPlayNotFound
	}
	return p.PriceCents, nil
}

func (t *memTx) ExpireDueForPlay(_ context.Context, playID uint64, now time.Time) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var n int64
	for _, r := range t.s.res {
		if r.PlayID == playID && r.Status == model.StatusPending && !r.ExpiresAt.After(now) {
			res := r
			res.Status = model.StatusExpired
			t.undo = append(t.undo, func() { res.Status = model.StatusPending })
			n++
		}
	}
	return n, nil
}

func (t *memTx) ActiveReservation(_ context.Context, userID, playID uint64) (uint64, bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, r := range t.s.res {
		if r.UserID == userID && r.PlayID == playID && model.HoldsSeats(r.Status) {
			return r.ID, true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) HeldSeats(_ context.Context, playID, excludeID uint64) (map[string]uint64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	held := make(map[string]uint64)
	for _, r := range t.s.res {
		if r.PlayID != playID || r.ID == excludeID || !model.HoldsSeats(r.Status) {
			continue
		}
		for _, seat := range r.Seats {
			held[seat] = r.ID
		}
	}
	return held, nil
}

func (t *memTx) GetOwned(_ context.Context, reservationID, userID uint64) (*model.Reservation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.res[reservationID]
	if !ok || r.UserID != userID {
		return nil, nil
	}
	cp := *r
	cp.Seats = append([]string(nil), r.Seats...)
	return &cp, nil
}

func (t *memTx) Insert(_ context.Context, res *model.Reservation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextID++
	res.ID = t.s.nextID
	cp := *res
	cp.Seats = append([]string(nil), res.Seats...)
	t.s.res[cp.ID] = &cp
	id := cp.ID
	t.undo = append(t.undo, func() { delete(t.s.res, id) })
	return nil
}

func (t *memTx) UpdateSeats(_ context.Context, reservationID uint64, seats []string, totalCents uint32) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r := t.s.res[reservationID]
	oldSeats, oldTotal := r.Seats, r.TotalCents
	r.Seats = append([]string(nil), seats...)
	r.TotalCents = totalCents
	t.undo = append(t.undo, func() { r.Seats, r.TotalCents = oldSeats, oldTotal })
	return nil
}

func (s *memStore) CancelOwned(_ context.Context, reservationID, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.res[reservationID]
	if !ok || r.UserID != userID || !model.HoldsSeats(r.Status) {
		return false, nil
	}
	r.Status = model.StatusCancelled
	return true, nil
}

func (s *memStore) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.res {
		if r.Status == model.StatusPending && !r.ExpiresAt.After(now) {
			r.Status = model.StatusExpired
			n++
		}
	}
	return n, nil
}

func (s *memStore) ReservedSeats(_ context.Context, playID uint64, now time.Time) ([]SeatAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id, r := range s.res {
		if r.PlayID != playID || !model.HoldsSeats(r.Status) {
			continue
		}
		if r.Status == model.StatusPending && !r.ExpiresAt.After(now) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []SeatAssignment
	for _, id := range ids {
		for _, seat := range s.res[id].Seats {
			out = append(out, SeatAssignment{Seat: seat, ReservationID: id})
		}
	}
	return out, nil
}

// status reads a reservation's status directly from the store.
func (s *memStore) status(id uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res[id].Status
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *fakeClock) {
	t.Helper()
	store := newMemStore()
	clock := newFakeClock()
	return NewEngine(store, clock, 10*time.Minute), store, clock
}

func TestCreateValidatesInput(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	cases := map[string]struct {
		playID uint64
		seats  []string
	}{
		"no seats":        {1, nil},
		"blank label":     {1, []string{"A1", "  "}},
		"duplicate label": {1, []string{"A1", "A1"}},
		"zero play":       {0, []string{"A1"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := eng.Create(ctx, 7, tc.playID, tc.seats)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCreateUnknownPlay(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Create(context.Background(), 7, 99, []string{"A1"})
	assert.ErrorIs(t, err, ErrPlayNotFound)
}

func TestCreateComputesTotalAndExpiry(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	store.addPlay(1, 10000) // 100.00 per seat
	ctx := context.Background()

	res, err := eng.Create(ctx, 7, 1, []string{"A1", "A2"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Status)
	assert.Equal(t, uint32(20000), res.TotalCents)
	assert.Equal(t, []string{"A1", "A2"}, res.Seats)
	assert.Equal(t, clock.Now().Add(10*time.Minute), res.ExpiresAt)
	assert.NotZero(t, res.ID)
}

func TestSeatConflictListsOffendingSeats(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	_, err := eng.Create(ctx, 1, 1, []string{"A1", "A2"})
	require.NoError(t, err)

	_, err = eng.Create(ctx, 2, 1, []string{"A2", "A3"})
	var conflict *SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"A2"}, conflict.Seats)

	// Once the first hold ages out, the same seats become free again.
	clock.Advance(11 * time.Minute)
	res, err := eng.Create(ctx, 2, 1, []string{"A2", "A3"})
	require.NoError(t, err)
	assert.Equal(t, uint32(20000), res.TotalCents)
}

func TestOneLiveReservationPerUserAndPlay(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 5000)
	store.addPlay(2, 5000)
	ctx := context.Background()

	first, err := eng.Create(ctx, 7, 1, []string{"A1"})
	require.NoError(t, err)

	_, err = eng.Create(ctx, 7, 1, []string{"B1"})
	assert.ErrorIs(t, err, ErrDuplicateReservation)

	// A different play is fine.
	_, err = eng.Create(ctx, 7, 2, []string{"A1"})
	require.NoError(t, err)

	// Cancelling the first frees the slot on play 1.
	require.NoError(t, eng.Cancel(ctx, first.ID, 7))
	_, err = eng.Create(ctx, 7, 1, []string{"B1"})
	assert.NoError(t, err)
}

func TestUpdateSeatsRecomputesTotal(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	res, err := eng.Create(ctx, 7, 1, []string{"A1", "A2"})
	require.NoError(t, err)
	originalExpiry := res.ExpiresAt

	updated, err := eng.UpdateSeats(ctx, res.ID, 7, []string{"A1", "A2", "A3"})
	require.NoError(t, err)
	assert.Equal(t, uint32(30000), updated.TotalCents)
	assert.Equal(t, []string{"A1", "A2", "A3"}, updated.Seats)
	// Updating never extends the hold.
	assert.Equal(t, originalExpiry, updated.ExpiresAt)
}

func TestUpdateSeatsRereadsPrice(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	res, err := eng.Create(ctx, 7, 1, []string{"A1"})
	require.NoError(t, err)

	store.setPrice(1, 12500)
	updated, err := eng.UpdateSeats(ctx, res.ID, 7, []string{"A1", "A2"})
	require.NoError(t, err)
	assert.Equal(t, uint32(25000), updated.TotalCents)
}

func TestUpdateSeatsDoesNotConflictWithItself(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	res, err := eng.Create(ctx, 7, 1, []string{"A1", "A2"})
	require.NoError(t, err)

	// Keeping A1 while swapping A2 for A3 must not collide with the
	// reservation's own seats.
	updated, err := eng.UpdateSeats(ctx, res.ID, 7, []string{"A1", "A3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A3"}, updated.Seats)
}

func TestUpdateSeatsRejectsConflicts(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	_, err := eng.Create(ctx, 1, 1, []string{"B1"})
	require.NoError(t, err)
	mine, err := eng.Create(ctx, 2, 1, []string{"A1"})
	require.NoError(t, err)

	_, err = eng.UpdateSeats(ctx, mine.ID, 2, []string{"A1", "B1"})
	var conflict *SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"B1"}, conflict.Seats)

	// The failed update leaves the reservation untouched.
	held, err := eng.ReservedSeats(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, held, SeatAssignment{Seat: "A1", ReservationID: mine.ID})
	assert.NotContains(t, held, SeatAssignment{Seat: "B1", ReservationID: mine.ID})
}

func TestUpdateSeatsNotModifiable(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	res, err := eng.Create(ctx, 7, 1, []string{"A1"})
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := eng.UpdateSeats(ctx, 999, 7, []string{"A2"})
		assert.ErrorIs(t, err, ErrNotModifiable)
	})
	t.Run("wrong owner", func(t *testing.T) {
		_, err := eng.UpdateSeats(ctx, res.ID, 8, []string{"A2"})
		assert.ErrorIs(t, err, ErrNotModifiable)
	})
	t.Run("expired", func(t *testing.T) {
		clock.Advance(11 * time.Minute)
		_, err := eng.UpdateSeats(ctx, res.ID, 7, []string{"A2"})
		assert.ErrorIs(t, err, ErrNotModifiable)
	})
	t.Run("cancelled", func(t *testing.T) {
		other, err := eng.Create(ctx, 9, 1, []string{"C1"})
		require.NoError(t, err)
		require.NoError(t, eng.Cancel(ctx, other.ID, 9))
		_, err = eng.UpdateSeats(ctx, other.ID, 9, []string{"C2"})
		assert.ErrorIs(t, err, ErrNotModifiable)
	})
}

func TestCancelIsNotSilentlyIdempotent(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	res, err := eng.Create(ctx, 7, 1, []string{"A1"})
	require.NoError(t, err)

	require.NoError(t, eng.Cancel(ctx, res.ID, 7))
	assert.ErrorIs(t, eng.Cancel(ctx, res.ID, 7), ErrNotFound)
	assert.ErrorIs(t, eng.Cancel(ctx, 999, 7), ErrNotFound)
	assert.ErrorIs(t, eng.Cancel(ctx, res.ID, 8), ErrNotFound)

	// Terminal states are never reopened: an expired reservation
	// cannot be cancelled either.
	expired, err := eng.Create(ctx, 8, 1, []string{"B1"})
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)
	_, err = eng.SweepExpired(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, eng.Cancel(ctx, expired.ID, 8), ErrNotFound)
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	res, err := eng.Create(ctx, 7, 1, []string{"A1", "A2"})
	require.NoError(t, err)

	n, err := eng.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(11 * time.Minute)
	n, err = eng.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, model.StatusExpired, store.status(res.ID))

	n, err = eng.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReservedSeatsProjection(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	a, err := eng.Create(ctx, 1, 1, []string{"A1", "A2"})
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)
	b, err := eng.Create(ctx, 2, 1, []string{"B1"})
	require.NoError(t, err)

	held, err := eng.ReservedSeats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []SeatAssignment{
		{Seat: "A1", ReservationID: a.ID},
		{Seat: "A2", ReservationID: a.ID},
		{Seat: "B1", ReservationID: b.ID},
	}, held)

	// Past-due pending rows drop out of the projection even before a
	// sweep has run.
	clock.Advance(6 * time.Minute)
	held, err = eng.ReservedSeats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []SeatAssignment{{Seat: "B1", ReservationID: b.ID}}, held)
}

// TestConcurrentCreatesContestedSeat drives many goroutines at one
// play, each wanting the same contested seat plus one of its own.
// Exactly one must win the contested seat; everyone else gets a
// SeatConflictError, and no seat ends up on two live reservations.
func TestConcurrentCreatesContestedSeat(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	const workers = 16
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seats := []string{"A1", fmt.Sprintf("X%d", i)}
			_, errs[i] = eng.Create(ctx, uint64(i+1), 1, seats)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var conflict *SeatConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []string{"A1"}, conflict.Seats)
	}
	assert.Equal(t, 1, winners)

	held, err := eng.ReservedSeats(ctx, 1)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, sa := range held {
		assert.False(t, seen[sa.Seat], "seat %s held twice", sa.Seat)
		seen[sa.Seat] = true
	}
	// The winner's two seats are the only ones recorded.
	assert.Len(t, held, 2)
}

// TestConcurrentCreatesDisjointSeats checks that contention on one
// play does not reject non-overlapping requests.
func TestConcurrentCreatesDisjointSeats(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	store.addPlay(1, 10000)
	ctx := context.Background()

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Create(ctx, uint64(i+1), 1, []string{fmt.Sprintf("R%d", i)})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
	held, err := eng.ReservedSeats(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, held, workers)
}
