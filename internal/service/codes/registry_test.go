package codes

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCodeRepository struct {
	mock.Mock
}

func (m *MockCodeRepository) ClaimFree(ctx context.Context) (int, bool, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockCodeRepository) InsertInUse(ctx context.Context, code int) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockCodeRepository) Release(ctx context.Context, code int, at time.Time) error {
	args := m.Called(ctx, code, at)
	return args.Error(0)
}

func (m *MockCodeRepository) Get(ctx context.Context, code int) (*domain.ConfirmationCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConfirmationCode), args.Error(1)
}

func sequence(values ...int) func() int {
	i := 0
	return func() int {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestRegistry_AllocatePrefersFreedCode(t *testing.T) {
	repo := &MockCodeRepository{}
	repo.On("ClaimFree", mock.Anything).Return(424242, true, nil)

	code, err := NewRegistry().Allocate(context.Background(), &repository.Tx{Codes: repo})

	require.NoError(t, err)
	assert.Equal(t, 424242, code)
	repo.AssertNotCalled(t, "InsertInUse", mock.Anything, mock.Anything)
}

func TestRegistry_AllocateRetriesOnCollision(t *testing.T) {
	repo := &MockCodeRepository{}
	repo.On("ClaimFree", mock.Anything).Return(0, false, nil)
	repo.On("InsertInUse", mock.Anything, 111111).Return(false, nil).Once()
	repo.On("InsertInUse", mock.Anything, 222222).Return(true, nil).Once()

	registry := NewRegistry(WithGenerator(sequence(111111, 222222)))
	code, err := registry.Allocate(context.Background(), &repository.Tx{Codes: repo})

	require.NoError(t, err)
	assert.Equal(t, 222222, code)
	repo.AssertExpectations(t)
}

func TestRegistry_AllocateExhaustsAttempts(t *testing.T) {
	repo := &MockCodeRepository{}
	repo.On("ClaimFree", mock.Anything).Return(0, false, nil)
	repo.On("InsertInUse", mock.Anything, 555555).Return(false, nil)

	registry := NewRegistry(WithGenerator(sequence(555555)), WithMaxAttempts(3))
	_, err := registry.Allocate(context.Background(), &repository.Tx{Codes: repo})

	assert.True(t, apperrors.HasReason(err, apperrors.ReasonCodeSpaceExhausted))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeResourceExhausted))
	repo.AssertNumberOfCalls(t, "InsertInUse", 3)
}

func TestRegistry_FreedCodeIsReusedBeforeNewOne(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	registry := NewRegistry(WithGenerator(sequence(100001, 100002, 100003)))

	var first, second, reused int
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		var err error
		first, err = registry.Allocate(ctx, tx)
		require.NoError(t, err)
		second, err = registry.Allocate(ctx, tx)
		require.NoError(t, err)
		require.NoError(t, registry.Free(ctx, tx, first))
		reused, err = registry.Allocate(ctx, tx)
		return err
	}))

	assert.Equal(t, 100001, first)
	assert.Equal(t, 100002, second)
	assert.Equal(t, first, reused)
}

func TestRandomCodeStaysInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := randomCode()
		assert.GreaterOrEqual(t, code, domain.MinConfirmationCode)
		assert.LessOrEqual(t, code, domain.MaxConfirmationCode)
	}
}
