package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/repository"
)

type reservationRepo struct{ s *Store }

func (r *reservationRepo) Insert(_ context.Context, res *domain.Reservation) error {
	st := r.s.st
	if err := checkOverlap(st, *res); err != nil {
		return err
	}
	st.nextReservationID++
	res.ID = st.nextReservationID
	res.CreatedAt = r.s.now()
	st.reservations[res.ID] = *res
	return nil
}

func (r *reservationRepo) Update(_ context.Context, res *domain.Reservation) error {
	st := r.s.st
	current, ok := st.reservations[res.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := checkOverlap(st, *res); err != nil {
		return err
	}
	current.Status = res.Status
	current.ArrivalTime = res.ArrivalTime
	current.LeaveTime = res.LeaveTime
	current.TableNumber = res.TableNumber
	current.TableHeld = res.TableHeld
	current.ReminderSent = res.ReminderSent
	current.ReminderSentAt = res.ReminderSentAt
	st.reservations[res.ID] = current
	return nil
}

// checkOverlap mirrors the exclusion constraint on ACTIVE rows.
func checkOverlap(st *state, res domain.Reservation) error {
	if res.Status != domain.ReservationStatusActive || res.TableNumber == nil {
		return nil
	}
	for _, other := range st.reservations {
		if other.ID == res.ID || other.Status != domain.ReservationStatusActive || other.TableNumber == nil {
			continue
		}
		if *other.TableNumber == *res.TableNumber && overlaps(other, res.ReservationTime, res.EndTime()) {
			return apperrors.New(apperrors.CodeConcurrencyConflict, "table already booked for an overlapping span").
				WithReason(apperrors.ReasonReservationOverlaps)
		}
	}
	return nil
}

func overlaps(res domain.Reservation, from, to time.Time) bool {
	return res.ReservationTime.Before(to) && res.EndTime().After(from)
}

func (r *reservationRepo) GetByID(_ context.Context, id int64, _ bool) (*domain.Reservation, error) {
	res, ok := r.s.st.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &res, nil
}

func (r *reservationRepo) GetActiveByCode(_ context.Context, code int) (*domain.Reservation, error) {
	return r.first(func(res domain.Reservation) bool {
		return res.ConfirmationCode == code && res.Status == domain.ReservationStatusActive
	}, byCreated)
}

func (r *reservationRepo) GetLatestByCode(_ context.Context, code int) (*domain.Reservation, error) {
	return r.first(func(res domain.Reservation) bool {
		return res.ConfirmationCode == code
	}, func(a, b domain.Reservation) int { return byCreated(b, a) })
}

func (r *reservationRepo) BookedTables(_ context.Context, from, to time.Time, excludeID int64) (map[int]bool, error) {
	booked := make(map[int]bool)
	for _, res := range r.s.st.reservations {
		if res.ID == excludeID || res.Status != domain.ReservationStatusActive || res.TableNumber == nil {
			continue
		}
		if overlaps(res, from, to) {
			booked[*res.TableNumber] = true
		}
	}
	return booked, nil
}

func (r *reservationRepo) ClaimDueUnseated(_ context.Context, table, maxParty int, now time.Time) (*domain.Reservation, error) {
	return r.first(func(res domain.Reservation) bool {
		return res.Status == domain.ReservationStatusActive &&
			res.TableNumber == nil &&
			res.PartySize <= maxParty &&
			!res.ReservationTime.After(now) &&
			!r.bookedOn(table, res)
	}, func(a, b domain.Reservation) int {
		if c := a.ReservationTime.Compare(b.ReservationTime); c != 0 {
			return c
		}
		return byCreated(a, b)
	})
}

// bookedOn reports whether another ACTIVE reservation on table overlaps res.
func (r *reservationRepo) bookedOn(table int, res domain.Reservation) bool {
	for _, other := range r.s.st.reservations {
		if other.ID == res.ID || other.Status != domain.ReservationStatusActive ||
			other.TableNumber == nil || *other.TableNumber != table {
			continue
		}
		if overlaps(other, res.ReservationTime, res.EndTime()) {
			return true
		}
	}
	return false
}

func (r *reservationRepo) HolderOf(_ context.Context, table int) (*domain.Reservation, error) {
	return r.first(func(res domain.Reservation) bool {
		return res.Status == domain.ReservationStatusActive && res.TableHeld &&
			res.TableNumber != nil && *res.TableNumber == table
	}, byCreated)
}

func (r *reservationRepo) ListNoShowIDs(_ context.Context, cutoff time.Time) ([]int64, error) {
	return r.ids(func(res domain.Reservation) bool {
		return res.Status == domain.ReservationStatusActive &&
			res.Source == domain.ReservationSourceRegular &&
			res.ArrivalTime == nil &&
			!res.ReservationTime.After(cutoff)
	}), nil
}

func (r *reservationRepo) ListReminderDueIDs(_ context.Context, from, to time.Time) ([]int64, error) {
	return r.ids(func(res domain.Reservation) bool {
		return res.Status == domain.ReservationStatusActive &&
			!res.ReminderSent &&
			res.ReservationTime.After(from) &&
			!res.ReservationTime.After(to)
	}), nil
}

func (r *reservationRepo) MarkReminderSent(_ context.Context, id int64, at time.Time) (bool, error) {
	res, ok := r.s.st.reservations[id]
	if !ok || res.Status != domain.ReservationStatusActive || res.ReminderSent {
		return false, nil
	}
	res.ReminderSent = true
	res.ReminderSentAt = &at
	r.s.st.reservations[id] = res
	return true, nil
}

func (r *reservationRepo) first(match func(domain.Reservation) bool, cmp func(a, b domain.Reservation) int) (*domain.Reservation, error) {
	var found []domain.Reservation
	for _, res := range r.s.st.reservations {
		if match(res) {
			found = append(found, res)
		}
	}
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	slices.SortFunc(found, cmp)
	return &found[0], nil
}

func (r *reservationRepo) ids(match func(domain.Reservation) bool) []int64 {
	var found []domain.Reservation
	for _, res := range r.s.st.reservations {
		if match(res) {
			found = append(found, res)
		}
	}
	slices.SortFunc(found, func(a, b domain.Reservation) int {
		if c := a.ReservationTime.Compare(b.ReservationTime); c != 0 {
			return c
		}
		return byCreated(a, b)
	})
	ids := make([]int64, 0, len(found))
	for _, res := range found {
		ids = append(ids, res.ID)
	}
	return ids
}

func byCreated(a, b domain.Reservation) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return compareInt64(a.ID, b.ID)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type tableRepo struct{ s *Store }

func (r *tableRepo) ListEnabled(_ context.Context) ([]domain.Table, error) {
	return r.list(func(t domain.Table) bool { return t.Enabled }), nil
}

func (r *tableRepo) Get(_ context.Context, number int) (*domain.Table, error) {
	t, ok := r.s.st.tables[number]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *tableRepo) MaxEnabledCapacity(_ context.Context) (int, error) {
	maxCapacity := 0
	for _, t := range r.s.st.tables {
		if t.Enabled && t.Capacity > maxCapacity {
			maxCapacity = t.Capacity
		}
	}
	return maxCapacity, nil
}

func (r *tableRepo) TryOccupy(_ context.Context, number int) (bool, error) {
	t, ok := r.s.st.tables[number]
	if !ok || !t.Enabled || t.Occupied {
		return false, nil
	}
	t.Occupied = true
	r.s.st.tables[number] = t
	return true, nil
}

func (r *tableRepo) Free(_ context.Context, number int) error {
	t, ok := r.s.st.tables[number]
	if !ok {
		return repository.ErrNotFound
	}
	t.Occupied = false
	r.s.st.tables[number] = t
	return nil
}

func (r *tableRepo) ListFree(_ context.Context, minCapacity int) ([]domain.Table, error) {
	return r.list(func(t domain.Table) bool {
		return t.Enabled && !t.Occupied && t.Capacity >= minCapacity
	}), nil
}

func (r *tableRepo) Save(_ context.Context, t domain.Table) error {
	if current, ok := r.s.st.tables[t.Number]; ok {
		t.Occupied = current.Occupied
	}
	r.s.st.tables[t.Number] = t
	return nil
}

func (r *tableRepo) list(match func(domain.Table) bool) []domain.Table {
	tables := make([]domain.Table, 0)
	for _, t := range r.s.st.tables {
		if match(t) {
			tables = append(tables, t)
		}
	}
	slices.SortFunc(tables, func(a, b domain.Table) int {
		if a.Capacity != b.Capacity {
			return a.Capacity - b.Capacity
		}
		return a.Number - b.Number
	})
	return tables
}

type waitlistRepo struct{ s *Store }

func (r *waitlistRepo) Insert(_ context.Context, e *domain.WaitlistEntry) error {
	st := r.s.st
	st.nextWaitlistID++
	e.ID = st.nextWaitlistID
	st.waitlist[e.ID] = *e
	return nil
}

func (r *waitlistRepo) Update(_ context.Context, e *domain.WaitlistEntry) error {
	if _, ok := r.s.st.waitlist[e.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.st.waitlist[e.ID] = *e
	return nil
}

func (r *waitlistRepo) GetByID(_ context.Context, id int64, _ bool) (*domain.WaitlistEntry, error) {
	e, ok := r.s.st.waitlist[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (r *waitlistRepo) GetActiveByCode(_ context.Context, code int) (*domain.WaitlistEntry, error) {
	return r.first(func(e domain.WaitlistEntry) bool {
		return e.ConfirmationCode == code &&
			(e.Status == domain.WaitlistStatusWaiting || e.Status == domain.WaitlistStatusOffered)
	}, byEntryID)
}

func (r *waitlistRepo) GetLatestByCode(_ context.Context, code int) (*domain.WaitlistEntry, error) {
	return r.first(func(e domain.WaitlistEntry) bool {
		return e.ConfirmationCode == code
	}, func(a, b domain.WaitlistEntry) int { return byEntryID(b, a) })
}

func (r *waitlistRepo) ClaimNextWaiting(_ context.Context, maxParty int) (*domain.WaitlistEntry, error) {
	return r.first(func(e domain.WaitlistEntry) bool {
		return e.Status == domain.WaitlistStatusWaiting && e.PartySize <= maxParty
	}, func(a, b domain.WaitlistEntry) int {
		if c := a.EnqueueTime.Compare(b.EnqueueTime); c != 0 {
			return c
		}
		return byEntryID(a, b)
	})
}

func (r *waitlistRepo) ListExpiredOfferIDs(_ context.Context, cutoff time.Time) ([]int64, error) {
	var found []domain.WaitlistEntry
	for _, e := range r.s.st.waitlist {
		if e.Status == domain.WaitlistStatusOffered && e.OfferedAt != nil && !e.OfferedAt.After(cutoff) {
			found = append(found, e)
		}
	}
	slices.SortFunc(found, func(a, b domain.WaitlistEntry) int {
		if c := a.OfferedAt.Compare(*b.OfferedAt); c != 0 {
			return c
		}
		return byEntryID(a, b)
	})
	ids := make([]int64, 0, len(found))
	for _, e := range found {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (r *waitlistRepo) first(match func(domain.WaitlistEntry) bool, cmp func(a, b domain.WaitlistEntry) int) (*domain.WaitlistEntry, error) {
	var found []domain.WaitlistEntry
	for _, e := range r.s.st.waitlist {
		if match(e) {
			found = append(found, e)
		}
	}
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	slices.SortFunc(found, cmp)
	return &found[0], nil
}

func byEntryID(a, b domain.WaitlistEntry) int {
	return compareInt64(a.ID, b.ID)
}

type codeRepo struct{ s *Store }

// ClaimFree picks the code freed longest ago; never-used free codes go first.
func (r *codeRepo) ClaimFree(_ context.Context) (int, bool, error) {
	var best *domain.ConfirmationCode
	for _, c := range r.s.st.codes {
		if c.InUse {
			continue
		}
		if best == nil || freedBefore(c, *best) {
			candidate := c
			best = &candidate
		}
	}
	if best == nil {
		return 0, false, nil
	}
	r.s.st.codes[best.Code] = domain.ConfirmationCode{Code: best.Code, InUse: true}
	return best.Code, true, nil
}

func freedBefore(a, b domain.ConfirmationCode) bool {
	switch {
	case a.FreedAt == nil && b.FreedAt == nil:
		return a.Code < b.Code
	case a.FreedAt == nil:
		return true
	case b.FreedAt == nil:
		return false
	case !a.FreedAt.Equal(*b.FreedAt):
		return a.FreedAt.Before(*b.FreedAt)
	}
	return a.Code < b.Code
}

func (r *codeRepo) InsertInUse(_ context.Context, code int) (bool, error) {
	if _, ok := r.s.st.codes[code]; ok {
		return false, nil
	}
	r.s.st.codes[code] = domain.ConfirmationCode{Code: code, InUse: true}
	return true, nil
}

func (r *codeRepo) Release(_ context.Context, code int, at time.Time) error {
	c, ok := r.s.st.codes[code]
	if !ok || !c.InUse {
		return nil
	}
	c.InUse = false
	c.FreedAt = &at
	r.s.st.codes[code] = c
	return nil
}

func (r *codeRepo) Get(_ context.Context, code int) (*domain.ConfirmationCode, error) {
	c, ok := r.s.st.codes[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type hoursRepo struct{ s *Store }

func (r *hoursRepo) Window(_ context.Context, day time.Time) (domain.OpeningWindow, bool, error) {
	if w, ok := r.s.st.overrides[day.Format(time.DateOnly)]; ok {
		return w, true, nil
	}
	w, ok := r.s.st.weekly[day.Weekday()]
	return w, ok, nil
}

func (r *hoursRepo) SetWeekly(_ context.Context, h domain.WeeklyHours) error {
	r.s.st.weekly[h.Weekday] = h.Window
	return nil
}

func (r *hoursRepo) SetOverride(_ context.Context, h domain.HoursOverride) error {
	r.s.st.overrides[h.Date.Format(time.DateOnly)] = h.Window
	return nil
}

type customerRepo struct{ s *Store }

func (r *customerRepo) Insert(_ context.Context, c *domain.Customer) error {
	st := r.s.st
	st.nextCustomerID++
	c.ID = st.nextCustomerID
	st.customers[c.ID] = *c
	return nil
}

func (r *customerRepo) GetByID(_ context.Context, id int64) (*domain.Customer, error) {
	c, ok := r.s.st.customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *customerRepo) GetBySubscriber(_ context.Context, subscriberID int64) (*domain.Customer, error) {
	return r.first(func(c domain.Customer) bool {
		return c.SubscriberID != nil && *c.SubscriberID == subscriberID
	})
}

func (r *customerRepo) FindByEmail(_ context.Context, email string) (*domain.Customer, error) {
	return r.first(func(c domain.Customer) bool {
		return c.Email != "" && strings.EqualFold(c.Email, email)
	})
}

func (r *customerRepo) FindByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	return r.first(func(c domain.Customer) bool {
		return c.Phone != "" && c.Phone == phone
	})
}

func (r *customerRepo) first(match func(domain.Customer) bool) (*domain.Customer, error) {
	var best *domain.Customer
	for _, c := range r.s.st.customers {
		if match(c) && (best == nil || c.ID < best.ID) {
			candidate := c
			best = &candidate
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}
