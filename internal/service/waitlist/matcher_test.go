package waitlist

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/repository/memory"
	"github.com/Domenick1991/restobooking/internal/service/availability"
	"github.com/Domenick1991/restobooking/internal/service/codes"
	"github.com/Domenick1991/restobooking/internal/service/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event notify.Event) {
	m.Called(ctx, event)
}

var base = time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	inventory *inventory.Inventory
	registry  *codes.Registry
	notifier  *MockNotifier
	matcher   *Matcher
	customer  domain.Customer
	now       time.Time
}

// newFixture creates the given tables, all occupied, and subscribes the
// matcher to table-freed events.
func newFixture(t *testing.T, capacities ...int) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), notifier: &MockNotifier{}, now: base}
	clock := func() time.Time { return f.now }

	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		for _, capacity := range capacities {
			if err := tx.Tables.Save(ctx, domain.Table{Number: capacity, Capacity: capacity, Enabled: true}); err != nil {
				return err
			}
			if _, err := tx.Tables.TryOccupy(ctx, capacity); err != nil {
				return err
			}
		}
		f.customer = domain.Customer{Name: "Walk In", Email: "walkin@example.com"}
		return tx.Customers.Insert(ctx, &f.customer)
	})

	f.registry = codes.NewRegistry(codes.WithClock(clock))
	f.inventory = inventory.New(f.store)
	planner := availability.NewPlanner(f.store, time.UTC)
	f.matcher = NewMatcher(f.store, planner, f.inventory, f.registry,
		WithClock(clock),
		WithNotifier(f.notifier),
	)
	f.inventory.Subscribe(f.matcher.OnTableFreed)
	return f
}

func (f *fixture) tx(t *testing.T, fn func(ctx context.Context, tx *repository.Tx) error) {
	t.Helper()
	require.NoError(t, f.store.WithinTx(context.Background(), fn))
}

func (f *fixture) enqueue(t *testing.T, partySize int, at time.Time) domain.WaitlistEntry {
	t.Helper()
	var entry domain.WaitlistEntry
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		code, err := f.registry.Allocate(ctx, tx)
		if err != nil {
			return err
		}
		entry = domain.WaitlistEntry{
			ConfirmationCode: code,
			CustomerID:       f.customer.ID,
			PartySize:        partySize,
			EnqueueTime:      at,
			Status:           domain.WaitlistStatusWaiting,
		}
		return tx.Waitlist.Insert(ctx, &entry)
	})
	return entry
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

func offeredTo(code int) any {
	return mock.MatchedBy(func(e notify.Event) bool {
		return e.Type == notify.EventTableOffered && e.ConfirmationCode == code
	})
}

func TestOnTableFreed_LargeTableSkipsAheadOfEarlierSmallParty(t *testing.T) {
	f := newFixture(t, 2, 6)
	a := f.enqueue(t, 2, base.Add(-10*time.Minute))
	b := f.enqueue(t, 6, base.Add(-5*time.Minute))
	f.notifier.On("Notify", mock.Anything, offeredTo(b.ConfirmationCode)).Once()
	f.notifier.On("Notify", mock.Anything, offeredTo(a.ConfirmationCode)).Once()

	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 6))
	assert.Equal(t, domain.WaitlistStatusWaiting, f.entry(t, a.ID).Status)
	gotB := f.entry(t, b.ID)
	assert.Equal(t, domain.WaitlistStatusOffered, gotB.Status)
	assert.Equal(t, base, *gotB.OfferedAt)
	require.NotNil(t, gotB.ReservationID)

	holding := f.reservation(t, *gotB.ReservationID)
	assert.Equal(t, 6, *holding.TableNumber)
	assert.True(t, holding.TableHeld)
	assert.Equal(t, domain.ReservationSourceWaitlist, holding.Source)
	assert.Equal(t, base, holding.ReservationTime)
	assert.NotEqual(t, b.ConfirmationCode, holding.ConfirmationCode)
	assert.True(t, f.occupied(t, 6))

	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 2))
	assert.Equal(t, domain.WaitlistStatusOffered, f.entry(t, a.ID).Status)
	f.notifier.AssertExpectations(t)
}

func TestMatch_EarliestFittingEntryWins(t *testing.T) {
	f := newFixture(t, 4)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Maybe()
	later := f.enqueue(t, 2, base.Add(-time.Minute))
	earlier := f.enqueue(t, 3, base.Add(-2*time.Minute))

	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		return tx.Tables.Free(ctx, 4)
	})
	result, err := f.matcher.Match(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOffered, result.Outcome)
	assert.Equal(t, earlier.ID, result.Entry.ID)
	assert.Equal(t, domain.WaitlistStatusWaiting, f.entry(t, later.ID).Status)
}

func TestMatch_DueUnseatedReservationComesFirst(t *testing.T) {
	f := newFixture(t, 4)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Maybe()
	waiting := f.enqueue(t, 2, base.Add(-time.Hour))

	arrived := base.Add(-20 * time.Minute)
	late := domain.Reservation{
		CustomerID:       f.customer.ID,
		ReservationTime:  base.Add(-15 * time.Minute),
		PartySize:        4,
		Status:           domain.ReservationStatusActive,
		ArrivalTime:      &arrived,
		CreatedAt:        base.Add(-48 * time.Hour),
		ConfirmationCode: 555555,
		Source:           domain.ReservationSourceRegular,
	}
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		return tx.Reservations.Insert(ctx, &late)
	})

	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 4))

	seated := f.reservation(t, late.ID)
	require.NotNil(t, seated.TableNumber)
	assert.Equal(t, 4, *seated.TableNumber)
	assert.True(t, seated.TableHeld)
	assert.True(t, f.occupied(t, 4))
	assert.Equal(t, domain.WaitlistStatusWaiting, f.entry(t, waiting.ID).Status)
}

func TestMatch_DueUnseatedSkipsReservationClashingOnTable(t *testing.T) {
	f := newFixture(t, 4)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Maybe()
	waiting := f.enqueue(t, 2, base.Add(-time.Hour))

	table := 4
	planned := domain.Reservation{
		CustomerID:       f.customer.ID,
		ReservationTime:  base.Add(-3 * time.Hour),
		PartySize:        4,
		Status:           domain.ReservationStatusActive,
		CreatedAt:        base.Add(-72 * time.Hour),
		ConfirmationCode: 333333,
		TableNumber:      &table,
		Source:           domain.ReservationSourceRegular,
	}
	clashing := domain.Reservation{
		CustomerID:       f.customer.ID,
		ReservationTime:  base.Add(-150 * time.Minute),
		PartySize:        2,
		Status:           domain.ReservationStatusActive,
		CreatedAt:        base.Add(-48 * time.Hour),
		ConfirmationCode: 333334,
		Source:           domain.ReservationSourceRegular,
	}
	fitting := domain.Reservation{
		CustomerID:       f.customer.ID,
		ReservationTime:  base.Add(-50 * time.Minute),
		PartySize:        2,
		Status:           domain.ReservationStatusActive,
		CreatedAt:        base.Add(-24 * time.Hour),
		ConfirmationCode: 333335,
		Source:           domain.ReservationSourceRegular,
	}
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		for _, res := range []*domain.Reservation{&planned, &clashing, &fitting} {
			if err := tx.Reservations.Insert(ctx, res); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 4))

	assert.Nil(t, f.reservation(t, clashing.ID).TableNumber)
	seated := f.reservation(t, fitting.ID)
	require.NotNil(t, seated.TableNumber)
	assert.Equal(t, 4, *seated.TableNumber)
	assert.True(t, seated.TableHeld)
	assert.Equal(t, domain.WaitlistStatusWaiting, f.entry(t, waiting.ID).Status)
}

func TestMatch_LostTableChangesNothing(t *testing.T) {
	f := newFixture(t, 4)
	entry := f.enqueue(t, 2, base)

	result, err := f.matcher.Match(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLost, result.Outcome)
	assert.Equal(t, domain.WaitlistStatusWaiting, f.entry(t, entry.ID).Status)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestMatch_NoCandidateFreesTableQuietly(t *testing.T) {
	f := newFixture(t, 4)
	events := 0
	f.inventory.Subscribe(func(context.Context, int) { events++ })

	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 4))
	assert.False(t, f.occupied(t, 4))
	assert.Equal(t, 1, events, "quiet release must not re-trigger matching")
}

func TestMatch_TableBookedSoonIsNotOffered(t *testing.T) {
	f := newFixture(t, 4)
	entry := f.enqueue(t, 2, base.Add(-time.Hour))
	table := 4
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		return tx.Reservations.Insert(ctx, &domain.Reservation{
			CustomerID:       f.customer.ID,
			ReservationTime:  base.Add(time.Hour),
			PartySize:        4,
			Status:           domain.ReservationStatusActive,
			ConfirmationCode: 444444,
			TableNumber:      &table,
			Source:           domain.ReservationSourceRegular,
		})
	})

	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 4))
	assert.False(t, f.occupied(t, 4))
	assert.Equal(t, domain.WaitlistStatusWaiting, f.entry(t, entry.ID).Status)
}

func TestConfirm(t *testing.T) {
	f := newFixture(t, 4)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Maybe()
	entry := f.enqueue(t, 3, base.Add(-time.Hour))
	waiting := f.enqueue(t, 6, base.Add(-time.Hour))
	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 4))

	_, err := f.matcher.Confirm(context.Background(), waiting.ConfirmationCode)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))

	_, err = f.matcher.Confirm(context.Background(), 123)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	f.now = base.Add(14 * time.Minute)
	seating, err := f.matcher.Confirm(context.Background(), entry.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistStatusSeated, seating.Entry.Status)
	assert.Equal(t, f.now, *seating.Reservation.ArrivalTime)
	assert.Equal(t, 4, *seating.Reservation.TableNumber)

	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		code, err := tx.Codes.Get(ctx, entry.ConfirmationCode)
		if err != nil {
			return err
		}
		assert.False(t, code.InUse)
		return nil
	})

	_, err = f.matcher.Confirm(context.Background(), entry.ConfirmationCode)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
}

func TestConfirm_ExpiredOfferIsRejectedWithoutChange(t *testing.T) {
	f := newFixture(t, 4)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Maybe()
	entry := f.enqueue(t, 3, base.Add(-time.Hour))
	require.NoError(t, f.inventory.ReleaseNow(context.Background(), 4))

	f.now = base.Add(16 * time.Minute)
	_, err := f.matcher.Confirm(context.Background(), entry.ConfirmationCode)
	assert.True(t, apperrors.HasReason(err, apperrors.ReasonOfferExpired))

	got := f.entry(t, entry.ID)
	assert.Equal(t, domain.WaitlistStatusOffered, got.Status)
	assert.Nil(t, f.reservation(t, *got.ReservationID).ArrivalTime)
}

func TestJoin(t *testing.T) {
	f := newFixture(t, 2, 4)
	f.tx(t, func(ctx context.Context, tx *repository.Tx) error {
		return tx.Tables.Free(ctx, 4)
	})
	identity := domain.Identity{Contact: &domain.Contact{Name: "Ada", Email: "ada@example.com"}}
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(e notify.Event) bool {
		return e.Type == notify.EventTableOffered && e.Email == "ada@example.com"
	})).Once()

	offered, err := f.matcher.Join(context.Background(), JoinWaitlistInput{PartySize: 3, Identity: identity})
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistStatusOffered, offered.Status)
	assert.True(t, f.occupied(t, 4))

	queued, err := f.matcher.Join(context.Background(), JoinWaitlistInput{PartySize: 3, Identity: identity})
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistStatusWaiting, queued.Status)
	assert.Equal(t, offered.CustomerID, queued.CustomerID)
	assert.NotEqual(t, offered.ConfirmationCode, queued.ConfirmationCode)

	_, err = f.matcher.Join(context.Background(), JoinWaitlistInput{PartySize: 10, Identity: identity})
	assert.True(t, apperrors.HasReason(err, apperrors.ReasonNoTableLargeEnough))

	_, err = f.matcher.Join(context.Background(), JoinWaitlistInput{PartySize: 0, Identity: identity})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	f.notifier.AssertExpectations(t)
}
