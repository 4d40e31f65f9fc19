package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elena-risteska/parter-be/internal/model"
	"github.com/elena-risteska/parter-be/internal/repository"
	"github.com/elena-risteska/parter-be/internal/reservation"
)

type mockService struct{ mock.Mock }

func (m *mockService) Create(ctx context.Context, userID, playID uint64, seats []string) (*model.Reservation, error) {
	args := m.Called(ctx, userID, playID, seats)
	if r := args.Get(0); r != nil {
		return r.(*model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) UpdateSeats(ctx context.Context, reservationID, userID uint64, seats []string) (*model.Reservation, error) {
	args := m.Called(ctx, reservationID, userID, seats)
	if r := args.Get(0); r != nil {
		return r.(*model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, reservationID, userID uint64) error {
	return m.Called(ctx, reservationID, userID).Error(0)
}

func (m *mockService) ReservedSeats(ctx context.Context, playID uint64) ([]reservation.SeatAssignment, error) {
	args := m.Called(ctx, playID)
	if r := args.Get(0); r != nil {
		return r.([]reservation.SeatAssignment), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockReader struct{ mock.Mock }

func (m *mockReader) ListByUser(ctx context.Context, userID uint64) ([]repository.ReservationDetail, error) {
	args := m.Called(ctx, userID)
	if r := args.Get(0); r != nil {
		return r.([]repository.ReservationDetail), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReader) GetByIDForUser(ctx context.Context, reservationID, userID uint64) (*repository.ReservationDetail, error) {
	args := m.Called(ctx, reservationID, userID)
	if r := args.Get(0); r != nil {
		return r.(*repository.ReservationDetail), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReader) ListAll(ctx context.Context) ([]repository.AdminReservationDetail, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.([]repository.AdminReservationDetail), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateReservationMapsEngineErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid input", reservation.ErrInvalidRequest, http.StatusBadRequest},
		{"unknown play", reservation.ErrPlayNotFound, http.StatusNotFound},
		{"duplicate", reservation.ErrDuplicateReservation, http.StatusConflict},
		{"seat conflict", &reservation.SeatConflictError{Seats: []string{"A1"}}, http.StatusConflict},
		{"transient", &reservation.TransientError{Op: "create", Err: sql.ErrConnDone}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("Create", mock.Anything, uint64(7), uint64(3), []string{"A1"}).Return(nil, tc.err)
			h := NewReservationHandler(svc, new(mockReader))

			c, rec := newTestContext(t, http.MethodPost, "/v1/reservations",
				`{"play_id":3,"seats":["A1"]}`)
			c.Set("user_id", uint64(7))

			require.NoError(t, h.Create(c))
			assert.Equal(t, tc.wantStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestCreateReservationConflictListsSeats(t *testing.T) {
	svc := new(mockService)
	svc.On("Create", mock.Anything, uint64(7), uint64(3), []string{"A1", "A2"}).
		Return(nil, &reservation.SeatConflictError{Seats: []string{"A2"}})
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodPost, "/v1/reservations",
		`{"play_id":3,"seats":["A1","A2"]}`)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Seats []string `json:"seats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"A2"}, body.Seats)
}

func TestCreateReservationRequiresPlayID(t *testing.T) {
	svc := new(mockService)
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodPost, "/v1/reservations", `{"seats":["A1"]}`)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Create")
}

func TestCreateReservationRequiresAuth(t *testing.T) {
	h := NewReservationHandler(new(mockService), new(mockReader))
	c, rec := newTestContext(t, http.MethodPost, "/v1/reservations",
		`{"play_id":3,"seats":["A1"]}`)
	// no user_id in context
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateReservationReturnsNewState(t *testing.T) {
	want := &model.Reservation{
		ID: 11, UserID: 7, PlayID: 3,
		Seats: []string{"B1", "B2"}, Status: model.StatusPending, TotalCents: 3000,
	}
	svc := new(mockService)
	svc.On("UpdateSeats", mock.Anything, uint64(11), uint64(7), []string{"B1", "B2"}).
		Return(want, nil)
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodPut, "/v1/reservations/11",
		`{"seats":["B1","B2"]}`)
	c.SetParamNames("id")
	c.SetParamValues("11")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got model.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want.Seats, got.Seats)
	assert.Equal(t, want.TotalCents, got.TotalCents)
}

func TestUpdateReservationClosedWindow(t *testing.T) {
	svc := new(mockService)
	svc.On("UpdateSeats", mock.Anything, uint64(11), uint64(7), []string{"B1"}).
		Return(nil, reservation.ErrNotModifiable)
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodPut, "/v1/reservations/11", `{"seats":["B1"]}`)
	c.SetParamNames("id")
	c.SetParamValues("11")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelReservationNotFound(t *testing.T) {
	svc := new(mockService)
	svc.On("Cancel", mock.Anything, uint64(99), uint64(7)).Return(reservation.ErrNotFound)
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodDelete, "/v1/reservations/99", "")
	c.SetParamNames("id")
	c.SetParamValues("99")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelReservationRejectsBadID(t *testing.T) {
	svc := new(mockService)
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodDelete, "/v1/reservations/abc", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Cancel")
}

func TestGetReservationNotFound(t *testing.T) {
	reads := new(mockReader)
	reads.On("GetByIDForUser", mock.Anything, uint64(5), uint64(7)).Return(nil, sql.ErrNoRows)
	h := NewReservationHandler(new(mockService), reads)

	c, rec := newTestContext(t, http.MethodGet, "/v1/reservations/5", "")
	c.SetParamNames("id")
	c.SetParamValues("5")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMineReturnsDetails(t *testing.T) {
	details := []repository.ReservationDetail{
		{ID: 1, PlayID: 3, PlayTitle: "Hamlet", Seats: []string{"A1"}, Status: model.StatusPending},
	}
	reads := new(mockReader)
	reads.On("ListByUser", mock.Anything, uint64(7)).Return(details, nil)
	h := NewReservationHandler(new(mockService), reads)

	c, rec := newTestContext(t, http.MethodGet, "/v1/reservations", "")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.ListMine(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got []repository.ReservationDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Hamlet", got[0].PlayTitle)
}

func TestSeatMapListsAssignments(t *testing.T) {
	svc := new(mockService)
	svc.On("ReservedSeats", mock.Anything, uint64(3)).Return([]reservation.SeatAssignment{
		{Seat: "A1", ReservationID: 10},
		{Seat: "A2", ReservationID: 12},
	}, nil)
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodGet, "/v1/plays/3/seats", "")
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.SeatMap(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		PlayID   uint64                       `json:"play_id"`
		Reserved []reservation.SeatAssignment `json:"reserved"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(3), body.PlayID)
	assert.Len(t, body.Reserved, 2)
}

func TestSeatMapUnknownPlay(t *testing.T) {
	svc := new(mockService)
	svc.On("ReservedSeats", mock.Anything, uint64(404)).Return(nil, reservation.ErrPlayNotFound)
	h := NewReservationHandler(svc, new(mockReader))

	c, rec := newTestContext(t, http.MethodGet, "/v1/plays/404/seats", "")
	c.SetParamNames("id")
	c.SetParamValues("404")

	require.NoError(t, h.SeatMap(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
