package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/metrics"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/service/customers"
)

// ReminderSweep notifies guests once their reservation is within the
// reminder lead time. The store flag makes each reminder go out once even
// when sweeps overlap.
type ReminderSweep struct {
	store    repository.Store
	notifier notify.Notifier
	log      *logger.Logger
	metrics  *metrics.SweepMetrics
	now      func() time.Time
	lead     time.Duration
}

type ReminderParams struct {
	Store    repository.Store
	Notifier notify.Notifier
	Logger   *logger.Logger
	Metrics  *metrics.SweepMetrics
	Now      func() time.Time
	Lead     time.Duration
}

func NewReminderSweep(p ReminderParams) *ReminderSweep {
	j := &ReminderSweep{
		store:    p.Store,
		notifier: p.Notifier,
		log:      p.Logger,
		metrics:  p.Metrics,
		now:      p.Now,
		lead:     p.Lead,
	}
	if j.log == nil {
		j.log = logger.Nop()
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.lead <= 0 {
		j.lead = DefaultReminderLead
	}
	return j
}

func (j *ReminderSweep) Name() string { return "reminder" }

func (j *ReminderSweep) Run(ctx context.Context) error {
	now := j.now()
	return sweepRows(ctx, j.store, j.log, j.metrics, j.Name(), "reservation",
		func(ctx context.Context, tx *repository.Tx) ([]int64, error) {
			return tx.Reservations.ListReminderDueIDs(ctx, now, now.Add(j.lead))
		},
		func(ctx context.Context, id int64) error {
			return j.remind(ctx, id, now)
		})
}

func (j *ReminderSweep) remind(ctx context.Context, id int64, now time.Time) error {
	return j.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		marked, err := tx.Reservations.MarkReminderSent(ctx, id, now)
		if err != nil {
			return fmt.Errorf("mark reminder sent: %w", err)
		}
		if !marked {
			return errSkip
		}
		res, err := tx.Reservations.GetByID(ctx, id, false)
		if err != nil {
			return fmt.Errorf("load reservation: %w", err)
		}
		if res.Status != domain.ReservationStatusActive {
			return errSkip
		}
		customer, err := customers.Load(ctx, tx, res.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer: %w", err)
		}
		if j.notifier != nil && customer.HasContact() {
			event := notify.ForReservation(notify.EventReservationReminder, customer, res, now)
			tx.AfterCommit(func(ctx context.Context) {
				j.notifier.Notify(ctx, event)
			})
		}
		return nil
	})
}
