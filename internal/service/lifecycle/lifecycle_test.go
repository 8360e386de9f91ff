package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/metrics"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/repository/memory"
	"github.com/Domenick1991/restobooking/internal/service/availability"
	"github.com/Domenick1991/restobooking/internal/service/booking"
	"github.com/Domenick1991/restobooking/internal/service/codes"
	"github.com/Domenick1991/restobooking/internal/service/inventory"
	"github.com/Domenick1991/restobooking/internal/service/waitlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event notify.Event) {
	m.Called(ctx, event)
}

type recordingMatcher struct {
	tables []int
}

func (r *recordingMatcher) OnTableFreed(_ context.Context, table int) {
	r.tables = append(r.tables, table)
}

var base = time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	planner   *availability.Planner
	inventory *inventory.Inventory
	registry  *codes.Registry
	customer  domain.Customer
	now       time.Time
}

func newFixture(t *testing.T, capacities ...int) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: base}
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		for _, capacity := range capacities {
			if err := tx.Tables.Save(ctx, domain.Table{Number: capacity, Capacity: capacity, Enabled: true}); err != nil {
				return err
			}
		}
		f.customer = domain.Customer{Name: "Guest", Email: "guest@example.com"}
		return tx.Customers.Insert(ctx, &f.customer)
	})
	f.registry = codes.NewRegistry(codes.WithClock(f.clock))
	f.inventory = inventory.New(f.store)
	f.planner = availability.NewPlanner(f.store, time.UTC)
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) tx(t *testing.T, fn func(ctx context.Context, tx *repository.Tx) error) {
	t.Helper()
	require.NoError(t, f.store.WithinTx(context.Background(), fn))
}

func (f *fixture) reserve(t *testing.T, res domain.Reservation) domain.Reservation {
	t.Helper()
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		code, err := f.registry.Allocate(ctx, tx)
		if err != nil {
			return err
		}
		res.ConfirmationCode = code
		res.CustomerID = f.customer.ID
		res.Status = domain.ReservationStatusActive
		if res.Source == "" {
			res.Source = domain.ReservationSourceRegular
		}
		return tx.Reservations.Insert(ctx, &res)
	})
	return res
}

func (f *fixture) reservation(t *testing.T, id int64) domain.Reservation {
	t.Helper()
	var res domain.Reservation
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		got, err := tx.Reservations.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		res = *got
		return nil
	})
	return res
}

func (f *fixture) entry(t *testing.T, id int64) domain.WaitlistEntry {
	t.Helper()
	var entry domain.WaitlistEntry
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		got, err := tx.Waitlist.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		entry = *got
		return nil
	})
	return entry
}

func (f *fixture) codeInUse(t *testing.T, code int) bool {
	t.Helper()
	var inUse bool
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		got, err := tx.Codes.Get(ctx, code)
		if err != nil {
			return err
		}
		inUse = got.InUse
		return nil
	})
	return inUse
}

func (f *fixture) occupied(t *testing.T, number int) bool {
	t.Helper()
	var occupied bool
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		table, err := tx.Tables.Get(ctx, number)
		if err != nil {
			return err
		}
		occupied = table.Occupied
		return nil
	})
	return occupied
}

func tableRef(n int) *int { return &n }

func TestNoShowSweep_CancelsLateRegularReservations(t *testing.T) {
	f := newFixture(t, 2, 4, 6)
	matcher := &recordingMatcher{}
	f.inventory.Subscribe(matcher.OnTableFreed)
	arrived := base.Add(-time.Hour)

	late := f.reserve(t, domain.Reservation{ReservationTime: base.Add(-20 * time.Minute), PartySize: 2, TableNumber: tableRef(2)})
	grace := f.reserve(t, domain.Reservation{ReservationTime: base.Add(-10 * time.Minute), PartySize: 4, TableNumber: tableRef(4)})
	seated := f.reserve(t, domain.Reservation{ReservationTime: base.Add(-time.Hour), PartySize: 6, TableNumber: tableRef(6), ArrivalTime: &arrived, TableHeld: true})
	holding := f.reserve(t, domain.Reservation{ReservationTime: base.Add(-time.Hour), PartySize: 2, Source: domain.ReservationSourceWaitlist})

	sweep := NewNoShowSweep(NoShowParams{
		Store:     f.store,
		Planner:   f.planner,
		Inventory: f.inventory,
		Codes:     f.registry,
		Now:       f.clock,
	})
	assert.Equal(t, "no-show", sweep.Name())
	require.NoError(t, sweep.Run(context.Background()))

	cancelled := f.reservation(t, late.ID)
	assert.Equal(t, domain.ReservationStatusCanceled, cancelled.Status)
	assert.False(t, f.codeInUse(t, late.ConfirmationCode))
	assert.Equal(t, []int{2}, matcher.tables)

	assert.Equal(t, domain.ReservationStatusActive, f.reservation(t, grace.ID).Status)
	assert.Equal(t, domain.ReservationStatusActive, f.reservation(t, seated.ID).Status)
	assert.Equal(t, domain.ReservationStatusActive, f.reservation(t, holding.ID).Status)

	// a second pass finds nothing left to do
	require.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, []int{2}, matcher.tables)
}

func TestOfferExpirySweep_RequeuesEntryAndRematchesTable(t *testing.T) {
	f := newFixture(t, 6)
	notifier := &MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Maybe()
	matcher := waitlist.NewMatcher(f.store, f.planner, f.inventory, f.registry, waitlist.WithClock(f.clock))
	f.inventory.Subscribe(matcher.OnTableFreed)

	var b, c domain.WaitlistEntry
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		if _, err := tx.Tables.TryOccupy(ctx, 6); err != nil {
			return err
		}
		for _, e := range []*domain.WaitlistEntry{&b, &c} {
			code, err := f.registry.Allocate(ctx, tx)
			if err != nil {
				return err
			}
			*e = domain.WaitlistEntry{ConfirmationCode: code, CustomerID: f.customer.ID, PartySize: 6, Status: domain.WaitlistStatusWaiting}
		}
		b.EnqueueTime = base.Add(-time.Hour)
		c.EnqueueTime = base.Add(-30 * time.Minute)
		if err := tx.Waitlist.Insert(ctx, &b); err != nil {
			return err
		}
		return tx.Waitlist.Insert(ctx, &c)
	})

	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 6))
	offered := f.entry(t, b.ID)
	require.Equal(t, domain.WaitlistStatusOffered, offered.Status)
	firstHolding := f.reservation(t, *offered.ReservationID)

	sweep := NewOfferExpirySweep(OfferExpiryParams{
		Store:     f.store,
		Inventory: f.inventory,
		Codes:     f.registry,
		Notifier:  notifier,
		Now:       f.clock,
	})

	f.now = base.Add(10 * time.Minute)
	require.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, domain.WaitlistStatusOffered, f.entry(t, b.ID).Status, "offer still inside its window")

	f.now = base.Add(16 * time.Minute)
	require.NoError(t, sweep.Run(context.Background()))

	requeued := f.entry(t, b.ID)
	assert.Equal(t, domain.WaitlistStatusWaiting, requeued.Status)
	assert.Equal(t, f.now, requeued.EnqueueTime)
	assert.Nil(t, requeued.OfferedAt)
	assert.Nil(t, requeued.ReservationID)
	assert.True(t, f.codeInUse(t, b.ConfirmationCode), "the entry keeps its code")

	cancelled := f.reservation(t, firstHolding.ID)
	assert.Equal(t, domain.ReservationStatusCanceled, cancelled.Status)
	assert.False(t, f.codeInUse(t, firstHolding.ConfirmationCode))

	// the freed table went straight to the entry now first in line
	assert.Equal(t, domain.WaitlistStatusOffered, f.entry(t, c.ID).Status)
	assert.True(t, f.occupied(t, 6))
	notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(e notify.Event) bool {
		return e.Type == notify.EventOfferExpired && e.ConfirmationCode == b.ConfirmationCode
	}))
}

func TestCancelHandsPlannedTableToWaitlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	matcher := waitlist.NewMatcher(f.store, f.planner, f.inventory, f.registry, waitlist.WithClock(f.clock))
	f.inventory.Subscribe(matcher.OnTableFreed)
	svc := booking.NewBookingService(f.store, f.planner, f.inventory, f.registry, booking.WithClock(f.clock))

	upcoming := f.reserve(t, domain.Reservation{ReservationTime: base.Add(30 * time.Minute), PartySize: 4, TableNumber: tableRef(4)})
	var entry domain.WaitlistEntry
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		code, err := f.registry.Allocate(ctx, tx)
		if err != nil {
			return err
		}
		entry = domain.WaitlistEntry{
			ConfirmationCode: code,
			CustomerID:       f.customer.ID,
			PartySize:        2,
			EnqueueTime:      base.Add(-10 * time.Minute),
			Status:           domain.WaitlistStatusWaiting,
		}
		return tx.Waitlist.Insert(ctx, &entry)
	})

	// the upcoming booking keeps the table from the waitlist
	result, err := matcher.Match(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, waitlist.OutcomeReleased, result.Outcome)
	assert.Equal(t, domain.WaitlistStatusWaiting, f.entry(t, entry.ID).Status)

	_, err = svc.Cancel(ctx, upcoming.ConfirmationCode)
	require.NoError(t, err)

	offered := f.entry(t, entry.ID)
	assert.Equal(t, domain.WaitlistStatusOffered, offered.Status)
	require.NotNil(t, offered.ReservationID)
	assert.True(t, f.occupied(t, 4))
}

func TestReminderSweep_SendsOnce(t *testing.T) {
	f := newFixture(t, 2, 4)
	soon := f.reserve(t, domain.Reservation{ReservationTime: base.Add(90 * time.Minute), PartySize: 2, TableNumber: tableRef(2)})
	later := f.reserve(t, domain.Reservation{ReservationTime: base.Add(3 * time.Hour), PartySize: 2, TableNumber: tableRef(4)})

	notifier := &MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(e notify.Event) bool {
		return e.Type == notify.EventReservationReminder && e.ConfirmationCode == soon.ConfirmationCode
	})).Once()

	sweep := NewReminderSweep(ReminderParams{Store: f.store, Notifier: notifier, Now: f.clock})
	require.NoError(t, sweep.Run(context.Background()))
	require.NoError(t, sweep.Run(context.Background()))

	got := f.reservation(t, soon.ID)
	assert.True(t, got.ReminderSent)
	assert.Equal(t, base, *got.ReminderSentAt)
	assert.False(t, f.reservation(t, later.ID).ReminderSent)
	notifier.AssertExpectations(t)
}

func TestSweepRowsIsolatesFailures(t *testing.T) {
	store := memory.New()
	reg := prometheus.NewRegistry()
	m := metrics.NewSweepMetrics(reg)
	var handled []int64
	err := sweepRows(context.Background(), store, logger.Nop(), m, "no-show", "reservation",
		func(context.Context, *repository.Tx) ([]int64, error) {
			return []int64{1, 2, 3, 4}, nil
		},
		func(_ context.Context, id int64) error {
			handled = append(handled, id)
			switch id {
			case 2:
				return errors.New("boom")
			case 3:
				return errSkip
			}
			return nil
		})

	assert.Equal(t, []int64{1, 2, 3, 4}, handled)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.ErrorContains(t, err, "reservation 2: boom")

	count, err := testutil.GatherAndCount(reg, "restobooking_sweep_rows_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	expected := `
# HELP restobooking_sweep_rows_total Reservations and waitlist entries visited by sweeps, by result.
# TYPE restobooking_sweep_rows_total counter
restobooking_sweep_rows_total{result="failed",sweep="no-show"} 1
restobooking_sweep_rows_total{result="processed",sweep="no-show"} 2
restobooking_sweep_rows_total{result="skipped",sweep="no-show"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "restobooking_sweep_rows_total"))
}
