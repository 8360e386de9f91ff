// Package codes hands out the six-digit confirmation codes shared by
// reservations and waitlist entries. All exclusion comes from the store.
package codes

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/repository"
)

const DefaultMaxAttempts = 10

type Registry struct {
	maxAttempts int
	generate    func() int
	now         func() time.Time
}

type Option func(*Registry)

func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithGenerator replaces the random code source.
func WithGenerator(fn func() int) Option {
	return func(r *Registry) {
		r.generate = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		maxAttempts: DefaultMaxAttempts,
		generate:    randomCode,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allocate reuses the longest-freed code when there is one and otherwise
// mints a new random code.
func (r *Registry) Allocate(ctx context.Context, tx *repository.Tx) (int, error) {
	code, ok, err := tx.Codes.ClaimFree(ctx)
	if err != nil {
		return 0, fmt.Errorf("claim free code: %w", err)
	}
	if ok {
		return code, nil
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		candidate := r.generate()
		inserted, err := tx.Codes.InsertInUse(ctx, candidate)
		if err != nil {
			return 0, fmt.Errorf("insert code: %w", err)
		}
		if inserted {
			return candidate, nil
		}
	}
	return 0, apperrors.Newf(apperrors.CodeResourceExhausted, apperrors.ReasonCodeSpaceExhausted,
		"no confirmation code after %d attempts", r.maxAttempts)
}

func (r *Registry) Free(ctx context.Context, tx *repository.Tx, code int) error {
	if err := tx.Codes.Release(ctx, code, r.now()); err != nil {
		return fmt.Errorf("release code %d: %w", code, err)
	}
	return nil
}

func randomCode() int {
	return domain.MinConfirmationCode + rand.IntN(domain.MaxConfirmationCode-domain.MinConfirmationCode+1)
}
