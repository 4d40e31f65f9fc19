package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/elena-risteska/parter-be/internal/model"
)

// PlayRepo provides CRUD access to the plays catalog.  Reads are
// public; writes are restricted to admins at the handler layer.
type PlayRepo struct{ db *sql.DB }

func NewPlayRepo(db *sql.DB) *PlayRepo { return &PlayRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// spanning multiple repositories.
func (r *PlayRepo) DB() *sql.DB { return r.db }

const playColumns = `id, title, description,
	DATE_FORMAT(date, '%Y-%m-%d'), TIME_FORMAT(time, '%H:%i'),
	duration_min, director, price_cents, total_seats, created_at`

func scanPlay(row interface{ Scan(...any) error }) (model.Play, error) {
	var p model.Play
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Date, &p.Time,
		&p.DurationMin, &p.Director, &p.PriceCents, &p.TotalSeats, &p.CreatedAt)
	return p, err
}

// List returns the full schedule ordered by date and curtain time.
func (r *PlayRepo) List(ctx context.Context) ([]model.Play, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+playColumns+` FROM plays ORDER BY date ASC, time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	plays := make([]model.Play, 0)
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plays, nil
}

// GetByID fetches one play, returning ErrPlayNotFound when absent.
func (r *PlayRepo) GetByID(ctx context.Context, id uint64) (model.Play, error) {
	p, err := scanPlay(r.db.QueryRowContext(ctx,
		`SELECT `+playColumns+` FROM plays WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Play{}, ErrPlayNotFound
	}
	return p, err
}

// Create inserts a play and populates the generated id.
func (r *PlayRepo) Create(ctx context.Context, p *model.Play) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO plays (title, description, date, time, duration_min, director, price_cents, total_seats)
		 VALUES (?,?,?,?,?,?,?,?)`,
		p.Title, p.Description, p.Date, p.Time, p.DurationMin, p.Director, p.PriceCents, p.TotalSeats)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// Update replaces every mutable column of a play.  A later price takes
// effect on the next total computation of any pending reservation.
func (r *PlayRepo) Update(ctx context.Context, p *model.Play) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE plays SET title=?, description=?, date=?, time=?, duration_min=?, director=?, price_cents=?, total_seats=?
		 WHERE id=?`,
		p.Title, p.Description, p.Date, p.Time, p.DurationMin, p.Director, p.PriceCents, p.TotalSeats, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPlayNotFound
	}
	return nil
}

// Delete removes a play from the catalog.
func (r *PlayRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM plays WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPlayNotFound
	}
	return nil
}
