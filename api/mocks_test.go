package api

import (
	"context"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/service/booking"
	"github.com/Domenick1991/restobooking/internal/service/waitlist"
	"github.com/stretchr/testify/mock"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) Create(ctx context.Context, input booking.CreateReservationInput) (*domain.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockBookingUseCase) Cancel(ctx context.Context, code int) (*booking.Cancellation, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Cancellation), args.Error(1)
}

func (m *MockBookingUseCase) RegisterArrival(ctx context.Context, code int) (*domain.Reservation, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockBookingUseCase) Complete(ctx context.Context, code int) (*domain.Reservation, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockBookingUseCase) ReleaseTable(ctx context.Context, table int) error {
	return m.Called(ctx, table).Error(0)
}

func (m *MockBookingUseCase) AlternativeSlots(ctx context.Context, start time.Time, partySize int) ([]time.Time, error) {
	args := m.Called(ctx, start, partySize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}

// MockWaitlistUseCase is a mock implementation of waitlist.UseCase
type MockWaitlistUseCase struct {
	mock.Mock
}

func (m *MockWaitlistUseCase) Join(ctx context.Context, input waitlist.JoinWaitlistInput) (*domain.WaitlistEntry, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WaitlistEntry), args.Error(1)
}

func (m *MockWaitlistUseCase) Confirm(ctx context.Context, code int) (*waitlist.Seating, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waitlist.Seating), args.Error(1)
}

func (m *MockWaitlistUseCase) OnTableFreed(ctx context.Context, table int) {
	m.Called(ctx, table)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }
