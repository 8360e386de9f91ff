// Package waitlist queues walk-in parties and offers them tables as they free up.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/service/availability"
	"github.com/Domenick1991/restobooking/internal/service/codes"
	"github.com/Domenick1991/restobooking/internal/service/customers"
	"github.com/Domenick1991/restobooking/internal/service/inventory"
	"github.com/Domenick1991/restobooking/internal/validate"
)

// DefaultOfferWindow is how long an offered table is held for confirmation.
const DefaultOfferWindow = 15 * time.Minute

type UseCase interface {
	Join(ctx context.Context, input JoinWaitlistInput) (*domain.WaitlistEntry, error)
	Confirm(ctx context.Context, code int) (*Seating, error)
	OnTableFreed(ctx context.Context, table int)
}

type JoinWaitlistInput struct {
	PartySize int             `json:"party_size" validate:"gt=0,lte=100"`
	Identity  domain.Identity `json:"identity"`
}

// Seating is a confirmed offer: the finished entry and the reservation now
// holding the table.
type Seating struct {
	Entry       *domain.WaitlistEntry
	Reservation *domain.Reservation
}

type Outcome string

const (
	// OutcomeLost means another transaction got the table first.
	OutcomeLost          Outcome = "lost"
	OutcomeSeated        Outcome = "seated"
	OutcomeOffered       Outcome = "offered"
	OutcomeReleased      Outcome = "released"
	OutcomeTableDisabled Outcome = "disabled"
)

type MatchResult struct {
	Outcome     Outcome
	Reservation *domain.Reservation
	Entry       *domain.WaitlistEntry
}

type Matcher struct {
	store       repository.Store
	planner     *availability.Planner
	inventory   *inventory.Inventory
	codes       *codes.Registry
	notifier    notify.Notifier
	log         *logger.Logger
	now         func() time.Time
	offerWindow time.Duration
}

type Option func(*Matcher)

func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		m.now = now
	}
}

func WithOfferWindow(d time.Duration) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.offerWindow = d
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Matcher) {
		m.notifier = n
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(m *Matcher) {
		m.log = log
	}
}

func NewMatcher(
	store repository.Store,
	planner *availability.Planner,
	inv *inventory.Inventory,
	registry *codes.Registry,
	opts ...Option,
) *Matcher {
	m := &Matcher{
		store:       store,
		planner:     planner,
		inventory:   inv,
		codes:       registry,
		log:         logger.Nop(),
		now:         time.Now,
		offerWindow: DefaultOfferWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnTableFreed is the inventory listener. Failures are logged; the table
// stays free and the next event or sweep retries.
func (m *Matcher) OnTableFreed(ctx context.Context, table int) {
	logCtx := m.log.WithField(ctx, "table", table)
	result, err := m.Match(ctx, table)
	if err != nil {
		m.log.Error(logCtx, "waitlist match failed", err)
		return
	}
	m.log.Debug(m.log.WithField(logCtx, "outcome", string(result.Outcome)), "table matched")
}

// Match hands a just-freed table to the most deserving party: a late
// reservation still without a table, else the first waiting entry that fits.
func (m *Matcher) Match(ctx context.Context, table int) (*MatchResult, error) {
	var result *MatchResult
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		var err error
		result, err = m.match(ctx, tx, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Matcher) match(ctx context.Context, tx *repository.Tx, number int) (*MatchResult, error) {
	table, err := tx.Tables.Get(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, apperrors.ReasonNone, "table %d not found", number)
		}
		return nil, fmt.Errorf("load table: %w", err)
	}
	if !table.Enabled {
		return &MatchResult{Outcome: OutcomeTableDisabled}, nil
	}

	won, err := m.inventory.Reserve(ctx, tx, number)
	if err != nil {
		return nil, err
	}
	if !won {
		return &MatchResult{Outcome: OutcomeLost}, nil
	}

	now := m.now()
	res, err := m.seatDueReservation(ctx, tx, table, now)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return &MatchResult{Outcome: OutcomeSeated, Reservation: res}, nil
	}

	booked, err := tx.Reservations.BookedTables(ctx, now, now.Add(domain.ReservationDuration), 0)
	if err != nil {
		return nil, fmt.Errorf("booked tables: %w", err)
	}
	if !booked[number] {
		result, err := m.offer(ctx, tx, table, now)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	if err := m.inventory.ReleaseQuietly(ctx, tx, number); err != nil {
		return nil, err
	}
	return &MatchResult{Outcome: OutcomeReleased}, nil
}

func (m *Matcher) seatDueReservation(ctx context.Context, tx *repository.Tx, table *domain.Table, now time.Time) (*domain.Reservation, error) {
	res, err := tx.Reservations.ClaimDueUnseated(ctx, table.Number, table.Capacity, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim unseated reservation: %w", err)
	}

	number := table.Number
	res.TableNumber = &number
	res.TableHeld = true
	if err := tx.Reservations.Update(ctx, res); err != nil {
		return nil, fmt.Errorf("assign table: %w", err)
	}
	m.planner.InvalidateAfterCommit(tx, res.ReservationTime)
	return res, nil
}

func (m *Matcher) offer(ctx context.Context, tx *repository.Tx, table *domain.Table, now time.Time) (*MatchResult, error) {
	entry, err := tx.Waitlist.ClaimNextWaiting(ctx, table.Capacity)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim waiting entry: %w", err)
	}

	code, err := m.codes.Allocate(ctx, tx)
	if err != nil {
		return nil, err
	}
	number := table.Number
	holding := &domain.Reservation{
		CustomerID:       entry.CustomerID,
		ReservationTime:  now,
		PartySize:        entry.PartySize,
		Status:           domain.ReservationStatusActive,
		CreatedAt:        now,
		ConfirmationCode: code,
		TableNumber:      &number,
		TableHeld:        true,
		Source:           domain.ReservationSourceWaitlist,
	}
	if err := tx.Reservations.Insert(ctx, holding); err != nil {
		return nil, fmt.Errorf("insert holding reservation: %w", err)
	}

	entry.Status = domain.WaitlistStatusOffered
	entry.OfferedAt = &now
	entry.ReservationID = &holding.ID
	if err := tx.Waitlist.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("update waitlist entry: %w", err)
	}
	m.planner.InvalidateAfterCommit(tx, now)

	if m.notifier != nil {
		customer, err := customers.Load(ctx, tx, entry.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("load customer: %w", err)
		}
		if customer.HasContact() {
			event := notify.ForReservation(notify.EventTableOffered, customer, holding, now)
			event.ConfirmationCode = entry.ConfirmationCode
			tx.AfterCommit(func(ctx context.Context) {
				m.notifier.Notify(ctx, event)
			})
		}
	}
	return &MatchResult{Outcome: OutcomeOffered, Reservation: holding, Entry: entry}, nil
}

// Confirm accepts an offer presented within the offer window. A rejected
// presentation changes nothing.
func (m *Matcher) Confirm(ctx context.Context, code int) (*Seating, error) {
	var seating *Seating
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		entry, err := tx.Waitlist.GetActiveByCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			if _, err := tx.Waitlist.GetLatestByCode(ctx, code); err == nil {
				return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonNone, "waitlist entry %d is no longer active", code)
			}
			return apperrors.Newf(apperrors.CodeNotFound, apperrors.ReasonNone, "waitlist code %d not found", code)
		}
		if err != nil {
			return fmt.Errorf("load waitlist entry: %w", err)
		}
		if entry.Status != domain.WaitlistStatusOffered || entry.ReservationID == nil {
			return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonNone, "no table has been offered for code %d", code)
		}

		now := m.now()
		if now.After(entry.OfferedAt.Add(m.offerWindow)) {
			return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonOfferExpired, "offer for code %d has expired", code)
		}
		holding, err := tx.Reservations.GetByID(ctx, *entry.ReservationID, false)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && holding.IsTerminal()) {
			return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonOfferExpired, "offer for code %d was withdrawn", code)
		}
		if err != nil {
			return fmt.Errorf("load holding reservation: %w", err)
		}

		entry.Status = domain.WaitlistStatusSeated
		if err := m.codes.Free(ctx, tx, entry.ConfirmationCode); err != nil {
			return err
		}
		if err := tx.Waitlist.Update(ctx, entry); err != nil {
			return fmt.Errorf("update waitlist entry: %w", err)
		}
		holding.ArrivalTime = &now
		if err := tx.Reservations.Update(ctx, holding); err != nil {
			return fmt.Errorf("update holding reservation: %w", err)
		}
		seating = &Seating{Entry: entry, Reservation: holding}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info(m.log.WithFields(ctx, map[string]any{
		"entry_id":       seating.Entry.ID,
		"reservation_id": seating.Reservation.ID,
		"table":          *seating.Reservation.TableNumber,
	}), "waitlist offer confirmed")
	return seating, nil
}

// Join enqueues a party and immediately tries any idle table that fits it.
func (m *Matcher) Join(ctx context.Context, input JoinWaitlistInput) (*domain.WaitlistEntry, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := customers.ValidateIdentity(input.Identity); err != nil {
		return nil, err
	}

	var entry *domain.WaitlistEntry
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		maxCapacity, err := tx.Tables.MaxEnabledCapacity(ctx)
		if err != nil {
			return fmt.Errorf("max capacity: %w", err)
		}
		if input.PartySize > maxCapacity {
			return apperrors.Newf(apperrors.CodeCapacity, apperrors.ReasonNoTableLargeEnough,
				"largest table seats %d", maxCapacity)
		}

		customer, err := customers.Resolve(ctx, tx, input.Identity)
		if err != nil {
			return err
		}
		code, err := m.codes.Allocate(ctx, tx)
		if err != nil {
			return err
		}
		entry = &domain.WaitlistEntry{
			ConfirmationCode: code,
			CustomerID:       customer.ID,
			PartySize:        input.PartySize,
			EnqueueTime:      m.now(),
			Status:           domain.WaitlistStatusWaiting,
		}
		if err := tx.Waitlist.Insert(ctx, entry); err != nil {
			return fmt.Errorf("insert waitlist entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := m.log.WithFields(ctx, map[string]any{"entry_id": entry.ID, "code": entry.ConfirmationCode})
	m.log.Info(logCtx, "joined waitlist")

	if err := m.offerIdleTables(ctx, entry); err != nil {
		m.log.Error(logCtx, "matching idle tables failed", err)
	}
	return entry, nil
}

// offerIdleTables runs the matcher over currently free tables that fit the
// entry until it is offered one. Earlier entries keep priority.
func (m *Matcher) offerIdleTables(ctx context.Context, entry *domain.WaitlistEntry) error {
	var free []domain.Table
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		var err error
		free, err = tx.Tables.ListFree(ctx, entry.PartySize)
		return err
	})
	if err != nil {
		return fmt.Errorf("list free tables: %w", err)
	}

	for _, t := range free {
		result, err := m.Match(ctx, t.Number)
		if err != nil {
			return err
		}
		if result.Outcome == OutcomeOffered && result.Entry.ID == entry.ID {
			*entry = *result.Entry
			return nil
		}
	}
	return nil
}

var _ UseCase = (*Matcher)(nil)
