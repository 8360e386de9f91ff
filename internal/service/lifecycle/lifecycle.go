// Package lifecycle holds the periodic sweeps that reclaim tables and codes
// from no-shows and stale offers and send reminders.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/metrics"
	"github.com/Domenick1991/restobooking/internal/repository"
	"go.uber.org/multierr"
)

const (
	DefaultNoShowGrace  = 15 * time.Minute
	DefaultOfferWindow  = 15 * time.Minute
	DefaultReminderLead = 2 * time.Hour
)

// errSkip marks a row that no longer qualifies or is locked by someone else.
var errSkip = errors.New("row skipped")

// sweepRows loads candidate ids in one transaction and then handles each in
// its own, so a failing row never rolls back or blocks the others.
func sweepRows(
	ctx context.Context,
	store repository.Store,
	log *logger.Logger,
	m *metrics.SweepMetrics,
	sweep, kind string,
	list func(ctx context.Context, tx *repository.Tx) ([]int64, error),
	handle func(ctx context.Context, id int64) error,
) error {
	var ids []int64
	err := store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		var err error
		ids, err = list(ctx, tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("list %s candidates: %w", kind, err)
	}

	var errs []error
	processed, skipped, failed := 0, 0, 0
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		err := handle(ctx, id)
		switch {
		case err == nil:
			processed++
		case errors.Is(err, errSkip):
			skipped++
		default:
			failed++
			rowCtx := log.WithField(ctx, kind+"_id", id)
			log.Error(rowCtx, "sweep row failed", err)
			errs = append(errs, fmt.Errorf("%s %d: %w", kind, id, err))
		}
	}
	m.AddRows(sweep, metrics.SweepRowProcessed, processed)
	m.AddRows(sweep, metrics.SweepRowSkipped, skipped)
	m.AddRows(sweep, metrics.SweepRowFailed, failed)
	if processed > 0 {
		log.Info(log.WithFields(ctx, map[string]any{"candidates": len(ids), "processed": processed}), kind+" sweep finished")
	}
	return multierr.Combine(errs...)
}

func loadLocked[T any](ctx context.Context, get func(ctx context.Context, id int64, skipLocked bool) (*T, error), id int64) (*T, error) {
	row, err := get(ctx, id, true)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errSkip
	}
	return row, err
}
