// Package memory is a single-process Store used for local runs and tests. One
// mutex is held for the whole unit of work and a failed unit restores the
// snapshot taken when it began.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/repository"
)

type state struct {
	reservations map[int64]domain.Reservation
	tables       map[int]domain.Table
	waitlist     map[int64]domain.WaitlistEntry
	codes        map[int]domain.ConfirmationCode
	weekly       map[time.Weekday]domain.OpeningWindow
	overrides    map[string]domain.OpeningWindow
	customers    map[int64]domain.Customer

	nextReservationID int64
	nextWaitlistID    int64
	nextCustomerID    int64
}

func newState() *state {
	return &state{
		reservations: make(map[int64]domain.Reservation),
		tables:       make(map[int]domain.Table),
		waitlist:     make(map[int64]domain.WaitlistEntry),
		codes:        make(map[int]domain.ConfirmationCode),
		weekly:       make(map[time.Weekday]domain.OpeningWindow),
		overrides:    make(map[string]domain.OpeningWindow),
		customers:    make(map[int64]domain.Customer),
	}
}

// clone copies every map. Pointer fields inside the records are never
// mutated in place, so sharing them is safe.
func (s *state) clone() *state {
	return &state{
		reservations:      maps.Clone(s.reservations),
		tables:            maps.Clone(s.tables),
		waitlist:          maps.Clone(s.waitlist),
		codes:             maps.Clone(s.codes),
		weekly:            maps.Clone(s.weekly),
		overrides:         maps.Clone(s.overrides),
		customers:         maps.Clone(s.customers),
		nextReservationID: s.nextReservationID,
		nextWaitlistID:    s.nextWaitlistID,
		nextCustomerID:    s.nextCustomerID,
	}
}

type Option func(*Store)

// WithClock sets the clock used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *repository.Tx) error) error {
	unit, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	unit.RunAfterCommit(context.WithoutCancel(ctx))
	return nil
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, tx *repository.Tx) error) (*repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	unit := &repository.Tx{
		Reservations: &reservationRepo{s: s},
		Tables:       &tableRepo{s: s},
		Waitlist:     &waitlistRepo{s: s},
		Codes:        &codeRepo{s: s},
		Hours:        &hoursRepo{s: s},
		Customers:    &customerRepo{s: s},
	}
	if err := fn(ctx, unit); err != nil {
		s.st = snapshot
		return nil, err
	}
	return unit, nil
}

var _ repository.Store = (*Store)(nil)
