package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

const dateLayout = "2006-01-02"

type PGHoursRepository struct {
	db DBTX
}

func NewHoursRepository(db DBTX) HoursRepository {
	return &PGHoursRepository{db: db}
}

// Window reads the override for day's calendar date first and falls back to
// the weekday default. day must already be in the restaurant's location.
func (r *PGHoursRepository) Window(ctx context.Context, day time.Time) (domain.OpeningWindow, bool, error) {
	w, ok, err := r.scan(ctx, `SELECT closed, open_minute, close_minute FROM opening_hours_overrides
		WHERE day = $1::date`, day.Format(dateLayout))
	if err != nil || ok {
		return w, ok, err
	}
	return r.scan(ctx, `SELECT closed, open_minute, close_minute FROM opening_hours
		WHERE weekday = $1`, int(day.Weekday()))
}

func (r *PGHoursRepository) SetWeekly(ctx context.Context, h domain.WeeklyHours) error {
	_, err := r.db.Exec(ctx, `INSERT INTO opening_hours (weekday, closed, open_minute, close_minute)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (weekday) DO UPDATE SET closed = EXCLUDED.closed,
			open_minute = EXCLUDED.open_minute, close_minute = EXCLUDED.close_minute`,
		int(h.Weekday), h.Window.Closed, minutes(h.Window.Open), minutes(h.Window.Close))
	return err
}

func (r *PGHoursRepository) SetOverride(ctx context.Context, h domain.HoursOverride) error {
	_, err := r.db.Exec(ctx, `INSERT INTO opening_hours_overrides (day, closed, open_minute, close_minute)
		VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (day) DO UPDATE SET closed = EXCLUDED.closed,
			open_minute = EXCLUDED.open_minute, close_minute = EXCLUDED.close_minute`,
		h.Date.Format(dateLayout), h.Window.Closed, minutes(h.Window.Open), minutes(h.Window.Close))
	return err
}

func (r *PGHoursRepository) scan(ctx context.Context, query string, args ...any) (domain.OpeningWindow, bool, error) {
	var w domain.OpeningWindow
	var openMinute, closeMinute int
	err := r.db.QueryRow(ctx, query, args...).Scan(&w.Closed, &openMinute, &closeMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OpeningWindow{}, false, nil
	}
	if err != nil {
		return domain.OpeningWindow{}, false, err
	}
	w.Open = time.Duration(openMinute) * time.Minute
	w.Close = time.Duration(closeMinute) * time.Minute
	return w, true, nil
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}

var _ HoursRepository = (*PGHoursRepository)(nil)
