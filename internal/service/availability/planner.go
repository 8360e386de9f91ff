package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/repository"
)

// SlotStep is the spacing of candidate start times.
const SlotStep = 30 * time.Minute

// SlotCache stores computed slot lists per calendar day and party size.
type SlotCache interface {
	GetSlots(ctx context.Context, day string, partySize int) ([]time.Time, bool, error)
	SetSlots(ctx context.Context, day string, partySize int, slots []time.Time, ttl time.Duration) error
	InvalidateSlots(ctx context.Context, days ...string) error
}

type Planner struct {
	store    repository.Store
	loc      *time.Location
	cache    SlotCache
	cacheTTL time.Duration
	log      *logger.Logger
}

type Option func(*Planner)

func WithCache(cache SlotCache, ttl time.Duration) Option {
	return func(p *Planner) {
		p.cache = cache
		p.cacheTTL = ttl
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(p *Planner) {
		p.log = log
	}
}

func NewPlanner(store repository.Store, loc *time.Location, opts ...Option) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	p := &Planner{store: store, loc: loc, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Planner) Location() *time.Location {
	return p.loc
}

// FindBestTable returns the smallest enabled table seating partySize with no
// ACTIVE reservation overlapping [start, start+2h), or nil.
func (p *Planner) FindBestTable(ctx context.Context, tx *repository.Tx, start time.Time, partySize int) (*domain.Table, error) {
	tables, err := tx.Tables.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return p.bestTable(ctx, tx, tables, start, partySize)
}

func (p *Planner) bestTable(ctx context.Context, tx *repository.Tx, tables []domain.Table, start time.Time, partySize int) (*domain.Table, error) {
	booked, err := tx.Reservations.BookedTables(ctx, start, start.Add(domain.ReservationDuration), 0)
	if err != nil {
		return nil, fmt.Errorf("booked tables: %w", err)
	}
	for _, t := range tables {
		if t.Capacity >= partySize && !booked[t.Number] {
			found := t
			return &found, nil
		}
	}
	return nil, nil
}

// ListSlots returns the bookable start times on date's calendar day, served
// from the cache when possible.
func (p *Planner) ListSlots(ctx context.Context, date time.Time, partySize int) ([]time.Time, error) {
	if partySize <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "party size must be positive")
	}
	day := p.dayKey(date)

	if p.cache != nil {
		slots, ok, err := p.cache.GetSlots(ctx, day, partySize)
		if err != nil {
			p.log.Warn(ctx, "slot cache read failed: "+err.Error())
		} else if ok {
			return slots, nil
		}
	}

	var slots []time.Time
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		var err error
		slots, err = p.Slots(ctx, tx, date, partySize)
		return err
	})
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.SetSlots(ctx, day, partySize, slots, p.cacheTTL); err != nil {
			p.log.Warn(ctx, "slot cache write failed: "+err.Error())
		}
	}
	return slots, nil
}

// Slots computes half-hour aligned start times from opening (rounded up)
// through close minus the reservation span, keeping those with a free table.
func (p *Planner) Slots(ctx context.Context, tx *repository.Tx, date time.Time, partySize int) ([]time.Time, error) {
	slots := make([]time.Time, 0)

	local := date.In(p.loc)
	window, ok, err := tx.Hours.Window(ctx, local)
	if err != nil {
		return nil, fmt.Errorf("opening hours: %w", err)
	}
	if !ok || window.Closed {
		return slots, nil
	}

	maxCapacity, err := tx.Tables.MaxEnabledCapacity(ctx)
	if err != nil {
		return nil, fmt.Errorf("max capacity: %w", err)
	}
	if partySize > maxCapacity {
		return slots, nil
	}

	tables, err := tx.Tables.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	last := window.Close - domain.ReservationDuration
	for offset := roundUp(window.Open, SlotStep); offset <= last; offset += SlotStep {
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, int(offset/time.Minute), 0, 0, p.loc)
		table, err := p.bestTable(ctx, tx, tables, start, partySize)
		if err != nil {
			return nil, err
		}
		if table != nil {
			slots = append(slots, start)
		}
	}
	return slots, nil
}

// InvalidateAfterCommit drops cached slots for the days a reservation span
// touches once tx commits.
func (p *Planner) InvalidateAfterCommit(tx *repository.Tx, start time.Time) {
	if p.cache == nil {
		return
	}
	days := []string{p.dayKey(start)}
	if end := p.dayKey(start.Add(domain.ReservationDuration)); end != days[0] {
		days = append(days, end)
	}
	tx.AfterCommit(func(ctx context.Context) {
		if err := p.cache.InvalidateSlots(ctx, days...); err != nil {
			p.log.Warn(ctx, "slot cache invalidation failed: "+err.Error())
		}
	})
}

func (p *Planner) dayKey(t time.Time) string {
	return t.In(p.loc).Format(time.DateOnly)
}

func roundUp(d, step time.Duration) time.Duration {
	if rem := d % step; rem != 0 {
		return d + step - rem
	}
	return d
}
