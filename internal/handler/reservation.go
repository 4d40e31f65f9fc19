package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/elena-risteska/parter-be/internal/model"
	"github.com/elena-risteska/parter-be/internal/queue"
	"github.com/elena-risteska/parter-be/internal/repository"
	"github.com/elena-risteska/parter-be/internal/reservation"
)

// ReservationService is the slice of the reservation engine the
// handlers need.  Keeping it an interface lets tests substitute a
// mock.
type ReservationService interface {
	Create(ctx context.Context, userID, playID uint64, seats []string) (*model.Reservation, error)
	UpdateSeats(ctx context.Context, reservationID, userID uint64, seats []string) (*model.Reservation, error)
	Cancel(ctx context.Context, reservationID, userID uint64) error
	ReservedSeats(ctx context.Context, playID uint64) ([]reservation.SeatAssignment, error)
}

// ReservationReader serves the read projections backing list and
// detail endpoints.
type ReservationReader interface {
	ListByUser(ctx context.Context, userID uint64) ([]repository.ReservationDetail, error)
	GetByIDForUser(ctx context.Context, reservationID, userID uint64) (*repository.ReservationDetail, error)
	ListAll(ctx context.Context) ([]repository.AdminReservationDetail, error)
}

// ReservationHandler owns every /v1/reservations route plus the public
// seat map.
type ReservationHandler struct {
	Service ReservationService
	Reads   ReservationReader
}

func NewReservationHandler(svc ReservationService, reads ReservationReader) *ReservationHandler {
	if svc == nil || reads == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Service: svc, Reads: reads}
}

type createReservationReq struct {
	PlayID uint64   `json:"play_id"`
	Seats  []string `json:"seats"`
}

type updateReservationReq struct {
	Seats []string `json:"seats"`
}

// writeEngineError maps engine errors onto HTTP answers.  Seat
// conflicts carry the offending labels so a client can retry with a
// different pick.
func writeEngineError(c echo.Context, err error) error {
	var conflict *reservation.SeatConflictError
	var transient *reservation.TransientError
	switch {
	case errors.Is(err, reservation.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, reservation.ErrPlayNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "play not found"})
	case errors.Is(err, reservation.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, reservation.ErrDuplicateReservation):
		return c.JSON(http.StatusConflict, echo.Map{"error": "you already have an active reservation for this play"})
	case errors.Is(err, reservation.ErrNotModifiable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation can no longer be modified"})
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "some seats are already taken",
			"seats": conflict.Seats,
		})
	case errors.As(err, &transient):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, please retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation operation failed"})
	}
}

// Create books seats for the current user on one play.
func (h *ReservationHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createReservationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.PlayID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "play_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	res, err := h.Service.Create(ctx, uid, req.PlayID, req.Seats)
	if err != nil {
		return writeEngineError(c, err)
	}

	if err := queue.Publish(ctx, queue.ReservationEvent{
		Kind:          queue.KindReservationCreated,
		ReservationID: res.ID,
		UserID:        res.UserID,
		PlayID:        res.PlayID,
		Seats:         res.Seats,
		TotalCents:    res.TotalCents,
	}); err != nil {
		log.Printf("reservation %d created but event not published: %v", res.ID, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Update replaces the seat set of a pending reservation.
func (h *ReservationHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var req updateReservationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	res, err := h.Service.UpdateSeats(ctx, id, uid, req.Seats)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel releases a reservation's seats.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Service.Cancel(ctx, id, uid); err != nil {
		return writeEngineError(c, err)
	}

	if err := queue.Publish(ctx, queue.ReservationEvent{
		Kind:          queue.KindReservationCancelled,
		ReservationID: id,
		UserID:        uid,
	}); err != nil {
		log.Printf("reservation %d cancelled but event not published: %v", id, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "reservation cancelled"})
}

// ListMine returns the current user's reservations, newest first.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	details, err := h.Reads.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list reservations failed"})
	}
	return c.JSON(http.StatusOK, details)
}

// Get returns one reservation owned by the current user.
func (h *ReservationHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	detail, err := h.Reads.GetByIDForUser(ctx, id, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load reservation failed"})
	}
	return c.JSON(http.StatusOK, detail)
}

// ListAll returns every reservation with its owner.  Admin only.
func (h *ReservationHandler) ListAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	details, err := h.Reads.ListAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list reservations failed"})
	}
	return c.JSON(http.StatusOK, details)
}

// SeatMap returns which seats of a play are currently taken, and by
// which reservation.  Public; expired holds are swept before reading.
func (h *ReservationHandler) SeatMap(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid play id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	seats, err := h.Service.ReservedSeats(ctx, id)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"play_id": id, "reserved": seats})
}
