package lifecycle

import (
	"context"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/metrics"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/service/availability"
	"github.com/Domenick1991/restobooking/internal/service/booking"
	"github.com/Domenick1991/restobooking/internal/service/codes"
	"github.com/Domenick1991/restobooking/internal/service/inventory"
)

// NoShowSweep cancels regular reservations whose party never arrived within
// the grace period.
type NoShowSweep struct {
	store     repository.Store
	planner   *availability.Planner
	inventory *inventory.Inventory
	codes     *codes.Registry
	log       *logger.Logger
	metrics   *metrics.SweepMetrics
	now       func() time.Time
	grace     time.Duration
}

type NoShowParams struct {
	Store     repository.Store
	Planner   *availability.Planner
	Inventory *inventory.Inventory
	Codes     *codes.Registry
	Logger    *logger.Logger
	Metrics   *metrics.SweepMetrics
	Now       func() time.Time
	Grace     time.Duration
}

func NewNoShowSweep(p NoShowParams) *NoShowSweep {
	j := &NoShowSweep{
		store:     p.Store,
		planner:   p.Planner,
		inventory: p.Inventory,
		codes:     p.Codes,
		log:       p.Logger,
		metrics:   p.Metrics,
		now:       p.Now,
		grace:     p.Grace,
	}
	if j.log == nil {
		j.log = logger.Nop()
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.grace <= 0 {
		j.grace = DefaultNoShowGrace
	}
	return j
}

func (j *NoShowSweep) Name() string { return "no-show" }

func (j *NoShowSweep) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.grace)
	return sweepRows(ctx, j.store, j.log, j.metrics, j.Name(), "reservation",
		func(ctx context.Context, tx *repository.Tx) ([]int64, error) {
			return tx.Reservations.ListNoShowIDs(ctx, cutoff)
		},
		func(ctx context.Context, id int64) error {
			return j.cancel(ctx, id, cutoff)
		})
}

func (j *NoShowSweep) cancel(ctx context.Context, id int64, cutoff time.Time) error {
	return j.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		res, err := loadLocked(ctx, tx.Reservations.GetByID, id)
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationStatusActive || res.Source != domain.ReservationSourceRegular ||
			res.HasArrived() || res.ReservationTime.After(cutoff) {
			return errSkip
		}

		if err := booking.CancelReservation(ctx, tx, j.codes, j.inventory, res); err != nil {
			return err
		}
		j.planner.InvalidateAfterCommit(tx, res.ReservationTime)
		j.log.Info(j.log.WithFields(ctx, map[string]any{
			"reservation_id": res.ID,
			"code":           res.ConfirmationCode,
		}), "no-show cancelled")
		return nil
	})
}
