package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/elena-risteska/parter-be/internal/model"
	"github.com/elena-risteska/parter-be/internal/repository"
)

// PlayHandler serves the play catalog.  List and Get are public;
// Create, Update and Delete sit behind the ADMIN role.
type PlayHandler struct {
	Plays *repository.PlayRepo
}

func NewPlayHandler(p *repository.PlayRepo) *PlayHandler {
	if p == nil {
		panic("nil PlayRepo passed to NewPlayHandler")
	}
	return &PlayHandler{Plays: p}
}

type playReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	DurationMin int    `json:"duration_min"`
	Director    string `json:"director"`
	PriceCents  uint32 `json:"price_cents"`
	TotalSeats  int    `json:"total_seats"`
}

func (r *playReq) validate() string {
	r.Title = strings.TrimSpace(r.Title)
	r.Director = strings.TrimSpace(r.Director)
	switch {
	case r.Title == "":
		return "title is required"
	case r.Date == "":
		return "date is required"
	case r.Time == "":
		return "time is required"
	case r.DurationMin <= 0:
		return "duration_min must be positive"
	case r.TotalSeats <= 0:
		return "total_seats must be positive"
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return "date must be YYYY-MM-DD"
	}
	if _, err := time.Parse("15:04", r.Time); err != nil {
		return "time must be HH:MM"
	}
	return ""
}

func (r *playReq) toModel() model.Play {
	return model.Play{
		Title:       r.Title,
		Description: r.Description,
		Date:        r.Date,
		Time:        r.Time,
		DurationMin: uint32(r.DurationMin),
		Director:    r.Director,
		PriceCents:  r.PriceCents,
		TotalSeats:  uint32(r.TotalSeats),
	}
}

// List returns the full schedule.
func (h *PlayHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	plays, err := h.Plays.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list plays failed"})
	}
	return c.JSON(http.StatusOK, plays)
}

// Get returns a single play by id.
func (h *PlayHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid play id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	p, err := h.Plays.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPlayNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "play not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load play failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// Create adds a play to the catalog.  Admin only.
func (h *PlayHandler) Create(c echo.Context) error {
	var req playReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	p := req.toModel()
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Plays.Create(ctx, &p); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create play failed"})
	}
	return c.JSON(http.StatusCreated, p)
}

// Update replaces every mutable field of a play.  Admin only.
func (h *PlayHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid play id"})
	}
	var req playReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	p := req.toModel()
	p.ID = id
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Plays.Update(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrPlayNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "play not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update play failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes a play.  Admin only.  Reservation rows reference the
// play with ON DELETE CASCADE, so their history goes with it.
func (h *PlayHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid play id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Plays.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPlayNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "play not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete play failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "play deleted"})
}
