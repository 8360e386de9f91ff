package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/restobooking/config"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/repository"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Seed upserts the configured tables and weekly hours in one transaction.
// Occupancy of existing tables is left alone.
func Seed(ctx context.Context, store repository.Store, rc config.RestaurantConfig) error {
	hours, err := ParseHours(rc.Hours)
	if err != nil {
		return err
	}
	for _, t := range rc.Tables {
		if t.Number <= 0 || t.Capacity <= 0 {
			return fmt.Errorf("table %d: number and capacity must be positive", t.Number)
		}
	}

	return store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		for _, t := range rc.Tables {
			table := domain.Table{Number: t.Number, Capacity: t.Capacity, Enabled: !t.Disabled}
			if err := tx.Tables.Save(ctx, table); err != nil {
				return fmt.Errorf("save table %d: %w", t.Number, err)
			}
		}
		for _, h := range hours {
			if err := tx.Hours.SetWeekly(ctx, h); err != nil {
				return fmt.Errorf("save hours for %s: %w", h.Weekday, err)
			}
		}
		return nil
	})
}

func ParseHours(entries []config.HoursConfig) ([]domain.WeeklyHours, error) {
	out := make([]domain.WeeklyHours, 0, len(entries))
	for _, e := range entries {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(e.Weekday))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", e.Weekday)
		}
		if e.Closed {
			out = append(out, domain.WeeklyHours{Weekday: day, Window: domain.OpeningWindow{Closed: true}})
			continue
		}

		open, err := clockOffset(e.Open)
		if err != nil {
			return nil, fmt.Errorf("%s open: %w", e.Weekday, err)
		}
		closeAt, err := clockOffset(e.Close)
		if err != nil {
			return nil, fmt.Errorf("%s close: %w", e.Weekday, err)
		}
		if closeAt <= open {
			return nil, fmt.Errorf("%s: close %s must be after open %s", e.Weekday, e.Close, e.Open)
		}
		out = append(out, domain.WeeklyHours{Weekday: day, Window: domain.OpeningWindow{Open: open, Close: closeAt}})
	}
	return out, nil
}

// clockOffset turns HH:MM into an offset from local midnight.
func clockOffset(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
