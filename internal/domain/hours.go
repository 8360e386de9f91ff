package domain

import "time"

// OpeningWindow describes a single day's business hours. Open and Close are
// offsets from local midnight.
type OpeningWindow struct {
	Closed bool
	Open   time.Duration
	Close  time.Duration
}

// Bounds returns the absolute open and close instants for the calendar day of date in loc.
func (w OpeningWindow) Bounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	d := date.In(loc)
	openAt := time.Date(d.Year(), d.Month(), d.Day(), 0, int(w.Open/time.Minute), 0, 0, loc)
	closeAt := time.Date(d.Year(), d.Month(), d.Day(), 0, int(w.Close/time.Minute), 0, 0, loc)
	return openAt, closeAt
}

// WeeklyHours is the default schedule, keyed by weekday.
type WeeklyHours struct {
	Weekday time.Weekday
	Window  OpeningWindow
}

// HoursOverride replaces the weekday default for one calendar date.
type HoursOverride struct {
	Date   time.Time
	Window OpeningWindow
}
