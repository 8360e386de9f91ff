package booking

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

const (
	DefaultMinLead         = time.Hour
	DefaultMaxAdvance      = 31 * 24 * time.Hour
	DefaultConflictRetries = 3
)

type BookingUseCase interface {
	Create(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error)
	Cancel(ctx context.Context, code int) (*Cancellation, error)
	RegisterArrival(ctx context.Context, code int) (*domain.Reservation, error)
	Complete(ctx context.Context, code int) (*domain.Reservation, error)
	ReleaseTable(ctx context.Context, table int) error
	AlternativeSlots(ctx context.Context, start time.Time, partySize int) ([]time.Time, error)
}

type CreateReservationInput struct {
	Start     time.Time       `json:"start" validate:"required"`
	PartySize int             `json:"party_size" validate:"gt=0,lte=100"`
	Identity  domain.Identity `json:"identity"`
}

// Cancellation reports what a confirmation code pointed at when it was cancelled.
type Cancellation struct {
	Reservation   *domain.Reservation
	WaitlistEntry *domain.WaitlistEntry
}

type BookingService struct {
	store     repository.Store
	planner   *availability.Planner
	inventory *inventory.Inventory
	codes     *codes.Registry
	notifier  notify.Notifier
	log       *logger.Logger
	now       func() time.Time

	minLead         time.Duration
	maxAdvance      time.Duration
	conflictRetries int
}

type BookingServiceOption func(*BookingService)

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

// WithWindow sets how far ahead a reservation must start at least and at most.
func WithWindow(minLead, maxAdvance time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.minLead = minLead
		s.maxAdvance = maxAdvance
	}
}

func WithConflictRetries(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.conflictRetries = n
		}
	}
}

func WithNotifier(n notify.Notifier) BookingServiceOption {
	return func(s *BookingService) {
		s.notifier = n
	}
}

func WithLogger(log *logger.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

func NewBookingService(
	store repository.Store,
	planner *availability.Planner,
	inv *inventory.Inventory,
	registry *codes.Registry,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		store:           store,
		planner:         planner,
		inventory:       inv,
		codes:           registry,
		log:             logger.Nop(),
		now:             time.Now,
		minLead:         DefaultMinLead,
		maxAdvance:      DefaultMaxAdvance,
		conflictRetries: DefaultConflictRetries,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Create books the best-fitting free table for the requested start. Every
// rejection happens before anything is written.
func (s *BookingService) Create(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := customers.ValidateIdentity(input.Identity); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.checkWindow(now, input.Start); err != nil {
		return nil, err
	}

	var created *domain.Reservation
	err := s.withRetry(ctx, "create reservation", func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
			table, err := s.pickTable(ctx, tx, now, input.Start, input.PartySize)
			if err != nil {
				return err
			}

			customer, err := customers.Resolve(ctx, tx, input.Identity)
			if err != nil {
				return err
			}
			code, err := s.codes.Allocate(ctx, tx)
			if err != nil {
				return err
			}

			number := table.Number
			res := &domain.Reservation{
				CustomerID:       customer.ID,
				ReservationTime:  input.Start,
				PartySize:        input.PartySize,
				Status:           domain.ReservationStatusActive,
				CreatedAt:        now,
				ConfirmationCode: code,
				TableNumber:      &number,
				Source:           domain.ReservationSourceRegular,
			}
			if err := tx.Reservations.Insert(ctx, res); err != nil {
				return fmt.Errorf("insert reservation: %w", err)
			}

			s.planner.InvalidateAfterCommit(tx, res.ReservationTime)
			s.notifyAfterCommit(tx, notify.EventReservationCreated, customer, res)
			created = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.log.WithFields(ctx, map[string]any{
		"reservation_id": created.ID,
		"code":           created.ConfirmationCode,
		"table":          *created.TableNumber,
	})
	s.log.Info(logCtx, "reservation created")
	return created, nil
}

func (s *BookingService) checkWindow(now, start time.Time) error {
	if earliest := now.Add(s.minLead); start.Before(earliest) {
		return apperrors.Newf(apperrors.CodeTiming, apperrors.ReasonTooEarly,
			"reservation must start at or after %s", earliest.In(s.planner.Location()).Format(time.RFC3339))
	}
	if latest := now.Add(s.maxAdvance); start.After(latest) {
		return apperrors.Newf(apperrors.CodeTiming, apperrors.ReasonTooLate,
			"reservation must start at or before %s", latest.In(s.planner.Location()).Format(time.RFC3339))
	}
	return nil
}

func (s *BookingService) bookable(now, start time.Time) bool {
	return s.checkWindow(now, start) == nil
}

// pickTable runs the hours and capacity checks in order and returns the
// table to book.
func (s *BookingService) pickTable(ctx context.Context, tx *repository.Tx, now, start time.Time, partySize int) (*domain.Table, error) {
	loc := s.planner.Location()
	window, ok, err := tx.Hours.Window(ctx, start.In(loc))
	if err != nil {
		return nil, fmt.Errorf("opening hours: %w", err)
	}
	if !ok || window.Closed {
		return nil, apperrors.Newf(apperrors.CodeTiming, apperrors.ReasonClosedDay,
			"restaurant is closed on %s", start.In(loc).Format(time.DateOnly))
	}
	openAt, closeAt := window.Bounds(start, loc)
	if start.Before(openAt) || start.Add(domain.ReservationDuration).After(closeAt) {
		return nil, apperrors.Newf(apperrors.CodeTiming, apperrors.ReasonOutsideHours,
			"reservation must fit between %s and %s", openAt.Format("15:04"), closeAt.Format("15:04"))
	}

	maxCapacity, err := tx.Tables.MaxEnabledCapacity(ctx)
	if err != nil {
		return nil, fmt.Errorf("max capacity: %w", err)
	}
	if partySize > maxCapacity {
		return nil, apperrors.Newf(apperrors.CodeCapacity, apperrors.ReasonNoTableLargeEnough,
			"largest table seats %d", maxCapacity).
			WithDetails(AlternativesDetails{AlternativeSlots: []time.Time{}})
	}

	table, err := s.planner.FindBestTable(ctx, tx, start, partySize)
	if err != nil {
		return nil, err
	}
	if table != nil {
		return table, nil
	}

	slots, err := s.planner.Slots(ctx, tx, start, partySize)
	if err != nil {
		return nil, err
	}
	return nil, apperrors.Newf(apperrors.CodeCapacity, apperrors.ReasonNoAvailability,
		"no table for %d at %s", partySize, start.In(loc).Format("15:04")).
		WithDetails(AlternativesDetails{AlternativeSlots: s.filterBookable(now, slots)})
}

// AlternativesDetails is attached to capacity rejections.
type AlternativesDetails struct {
	AlternativeSlots []time.Time `json:"alternative_slots"`
}

func (s *BookingService) filterBookable(now time.Time, slots []time.Time) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		if s.bookable(now, slot) {
			out = append(out, slot)
		}
	}
	return out
}

// AlternativeSlots lists the bookable starts on the same day as start.
func (s *BookingService) AlternativeSlots(ctx context.Context, start time.Time, partySize int) ([]time.Time, error) {
	slots, err := s.planner.ListSlots(ctx, start, partySize)
	if err != nil {
		return nil, err
	}
	return s.filterBookable(s.now(), slots), nil
}

// Cancel looks the code up among active reservations first, then active
// waitlist entries.
func (s *BookingService) Cancel(ctx context.Context, code int) (*Cancellation, error) {
	var result *Cancellation
	err := s.withRetry(ctx, "cancel", func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
			res, err := tx.Reservations.GetActiveByCode(ctx, code)
			switch {
			case err == nil:
				if err := s.cancelReservation(ctx, tx, res); err != nil {
					return err
				}
				result = &Cancellation{Reservation: res}
				return nil
			case !errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("load reservation: %w", err)
			}

			entry, err := tx.Waitlist.GetActiveByCode(ctx, code)
			switch {
			case err == nil:
				if err := s.cancelEntry(ctx, tx, entry); err != nil {
					return err
				}
				result = &Cancellation{WaitlistEntry: entry}
				return nil
			case !errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("load waitlist entry: %w", err)
			}

			return s.missing(ctx, tx, code)
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithField(ctx, "code", code), "cancelled")
	return result, nil
}

func (s *BookingService) cancelReservation(ctx context.Context, tx *repository.Tx, res *domain.Reservation) error {
	if err := CancelReservation(ctx, tx, s.codes, s.inventory, res); err != nil {
		return err
	}
	s.planner.InvalidateAfterCommit(tx, res.ReservationTime)

	customer, err := customers.Load(ctx, tx, res.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	s.notifyAfterCommit(tx, notify.EventReservationCanceled, customer, res)
	return nil
}

func (s *BookingService) cancelEntry(ctx context.Context, tx *repository.Tx, entry *domain.WaitlistEntry) error {
	wasOffered := entry.Status == domain.WaitlistStatusOffered
	entry.Status = domain.WaitlistStatusCancelled
	if err := s.codes.Free(ctx, tx, entry.ConfirmationCode); err != nil {
		return err
	}
	if err := tx.Waitlist.Update(ctx, entry); err != nil {
		return fmt.Errorf("update waitlist entry: %w", err)
	}
	if !wasOffered || entry.ReservationID == nil {
		return nil
	}

	holding, err := tx.Reservations.GetByID(ctx, *entry.ReservationID, false)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load holding reservation: %w", err)
	}
	if holding.IsTerminal() {
		return nil
	}
	return CancelReservation(ctx, tx, s.codes, s.inventory, holding)
}

// CancelReservation marks res CANCELED, frees its code and releases the
// table it holds. A table that was only planned is announced so the matcher
// can hand it on. Shared with the lifecycle sweeps.
func CancelReservation(ctx context.Context, tx *repository.Tx, registry *codes.Registry, inv *inventory.Inventory, res *domain.Reservation) error {
	res.Status = domain.ReservationStatusCanceled
	if err := registry.Free(ctx, tx, res.ConfirmationCode); err != nil {
		return err
	}
	if !res.TableHeld && res.TableNumber != nil {
		inv.Announce(tx, *res.TableNumber)
	}
	if err := releaseHeld(ctx, tx, inv, res); err != nil {
		return err
	}
	if err := tx.Reservations.Update(ctx, res); err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	return nil
}

func releaseHeld(ctx context.Context, tx *repository.Tx, inv *inventory.Inventory, res *domain.Reservation) error {
	if !res.TableHeld || res.TableNumber == nil {
		return nil
	}
	if err := inv.Release(ctx, tx, *res.TableNumber); err != nil {
		return err
	}
	res.TableHeld = false
	return nil
}

// RegisterArrival stamps the arrival and seats the party. When the planned
// table is still taken another free fitting table is tried; failing that the
// reservation loses its table and is seated by the next table to free up.
func (s *BookingService) RegisterArrival(ctx context.Context, code int) (*domain.Reservation, error) {
	var arrived *domain.Reservation
	err := s.withRetry(ctx, "register arrival", func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
			res, err := s.activeByCode(ctx, tx, code)
			if err != nil {
				return err
			}
			if res.HasArrived() {
				return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonNone,
					"arrival for code %d already registered", code)
			}

			now := s.now()
			res.ArrivalTime = &now
			if !res.TableHeld && res.TableNumber != nil {
				planned := *res.TableNumber
				if err := s.seat(ctx, tx, res); err != nil {
					return err
				}
				if res.TableNumber == nil || *res.TableNumber != planned {
					s.planner.InvalidateAfterCommit(tx, res.ReservationTime)
				}
			}
			if err := tx.Reservations.Update(ctx, res); err != nil {
				return fmt.Errorf("update reservation: %w", err)
			}
			arrived = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"reservation_id": arrived.ID, "code": code}
	if arrived.TableNumber != nil {
		fields["table"] = *arrived.TableNumber
	}
	s.log.Info(s.log.WithFields(ctx, fields), "arrival registered")
	return arrived, nil
}

func (s *BookingService) seat(ctx context.Context, tx *repository.Tx, res *domain.Reservation) error {
	won, err := s.inventory.Reserve(ctx, tx, *res.TableNumber)
	if err != nil {
		return err
	}
	if won {
		res.TableHeld = true
		return nil
	}

	free, err := tx.Tables.ListFree(ctx, res.PartySize)
	if err != nil {
		return fmt.Errorf("list free tables: %w", err)
	}
	booked, err := tx.Reservations.BookedTables(ctx, res.ReservationTime, res.EndTime(), res.ID)
	if err != nil {
		return fmt.Errorf("booked tables: %w", err)
	}
	for _, t := range free {
		if booked[t.Number] {
			continue
		}
		won, err := s.inventory.Reserve(ctx, tx, t.Number)
		if err != nil {
			return err
		}
		if won {
			number := t.Number
			res.TableNumber = &number
			res.TableHeld = true
			return nil
		}
	}

	res.TableNumber = nil
	return nil
}

// Complete closes a seated reservation and frees its table.
func (s *BookingService) Complete(ctx context.Context, code int) (*domain.Reservation, error) {
	var done *domain.Reservation
	err := s.withRetry(ctx, "complete", func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
			res, err := s.activeByCode(ctx, tx, code)
			if err != nil {
				return err
			}
			if err := s.complete(ctx, tx, res); err != nil {
				return err
			}
			done = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"reservation_id": done.ID, "code": code}), "reservation completed")
	return done, nil
}

func (s *BookingService) complete(ctx context.Context, tx *repository.Tx, res *domain.Reservation) error {
	if !res.HasArrived() {
		return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonNone,
			"reservation %d has no registered arrival", res.ID)
	}
	now := s.now()
	res.Status = domain.ReservationStatusDone
	res.LeaveTime = &now
	if err := s.codes.Free(ctx, tx, res.ConfirmationCode); err != nil {
		return err
	}
	if err := releaseHeld(ctx, tx, s.inventory, res); err != nil {
		return err
	}
	if err := tx.Reservations.Update(ctx, res); err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	s.planner.InvalidateAfterCommit(tx, res.ReservationTime)
	return nil
}

// ReleaseTable is the staff "table cleared" action. A seated holder is
// completed; a table still held for a party that has not shown up is refused.
func (s *BookingService) ReleaseTable(ctx context.Context, table int) error {
	err := s.withRetry(ctx, "release table", func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
			if _, err := tx.Tables.Get(ctx, table); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.Newf(apperrors.CodeNotFound, apperrors.ReasonNone, "table %d not found", table)
				}
				return fmt.Errorf("load table: %w", err)
			}

			holder, err := tx.Reservations.HolderOf(ctx, table)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return s.inventory.Release(ctx, tx, table)
			case err != nil:
				return fmt.Errorf("load table holder: %w", err)
			}
			if !holder.HasArrived() {
				return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonNone,
					"table %d is held for reservation %d awaiting arrival", table, holder.ID)
			}
			return s.complete(ctx, tx, holder)
		})
	})
	if err != nil {
		return err
	}
	s.log.Info(s.log.WithField(ctx, "table", table), "table released")
	return nil
}

func (s *BookingService) activeByCode(ctx context.Context, tx *repository.Tx, code int) (*domain.Reservation, error) {
	res, err := tx.Reservations.GetActiveByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.missing(ctx, tx, code)
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	return res, nil
}

// missing tells a known code in the wrong state apart from an unknown one.
func (s *BookingService) missing(ctx context.Context, tx *repository.Tx, code int) error {
	if _, err := tx.Reservations.GetLatestByCode(ctx, code); err == nil {
		return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonNone, "code %d does not belong to an active reservation", code)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load reservation: %w", err)
	}
	if _, err := tx.Waitlist.GetLatestByCode(ctx, code); err == nil {
		return apperrors.Newf(apperrors.CodeStateConflict, apperrors.ReasonNone, "code %d is not active", code)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load waitlist entry: %w", err)
	}
	return apperrors.Newf(apperrors.CodeNotFound, apperrors.ReasonNone, "confirmation code %d not found", code)
}

// withRetry reruns fn while it keeps losing races in the store.
func (s *BookingService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.conflictRetries; attempt++ {
		err = fn()
		if !apperrors.IsCode(err, apperrors.CodeConcurrencyConflict) {
			return err
		}
		s.log.Warn(s.log.WithField(ctx, "attempt", attempt), op+": concurrency conflict")
	}
	return err
}

func (s *BookingService) notifyAfterCommit(tx *repository.Tx, eventType notify.EventType, customer *domain.Customer, res *domain.Reservation) {
	if s.notifier == nil || !customer.HasContact() {
		return
	}
	event := notify.ForReservation(eventType, customer, res, s.now())
	tx.AfterCommit(func(ctx context.Context) {
		s.notifier.Notify(ctx, event)
	})
}

var _ BookingUseCase = (*BookingService)(nil)
