package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/metrics"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/service/booking"
	"github.com/Domenick1991/restobooking/internal/service/codes"
	"github.com/Domenick1991/restobooking/internal/service/customers"
	"github.com/Domenick1991/restobooking/internal/service/inventory"
)

// OfferExpirySweep withdraws offers nobody confirmed in time and puts the
// entry back at the end of the queue.
type OfferExpirySweep struct {
	store     repository.Store
	inventory *inventory.Inventory
	codes     *codes.Registry
	notifier  notify.Notifier
	log       *logger.Logger
	metrics   *metrics.SweepMetrics
	now       func() time.Time
	window    time.Duration
}

type OfferExpiryParams struct {
	Store     repository.Store
	Inventory *inventory.Inventory
	Codes     *codes.Registry
	Notifier  notify.Notifier
	Logger    *logger.Logger
	Metrics   *metrics.SweepMetrics
	Now       func() time.Time
	Window    time.Duration
}

func NewOfferExpirySweep(p OfferExpiryParams) *OfferExpirySweep {
	j := &OfferExpirySweep{
		store:     p.Store,
		inventory: p.Inventory,
		codes:     p.Codes,
		notifier:  p.Notifier,
		log:       p.Logger,
		metrics:   p.Metrics,
		now:       p.Now,
		window:    p.Window,
	}
	if j.log == nil {
		j.log = logger.Nop()
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.window <= 0 {
		j.window = DefaultOfferWindow
	}
	return j
}

func (j *OfferExpirySweep) Name() string { return "offer-expiry" }

func (j *OfferExpirySweep) Run(ctx context.Context) error {
	now := j.now()
	cutoff := now.Add(-j.window)
	return sweepRows(ctx, j.store, j.log, j.metrics, j.Name(), "waitlist_entry",
		func(ctx context.Context, tx *repository.Tx) ([]int64, error) {
			return tx.Waitlist.ListExpiredOfferIDs(ctx, cutoff)
		},
		func(ctx context.Context, id int64) error {
			return j.expire(ctx, id, now, cutoff)
		})
}

func (j *OfferExpirySweep) expire(ctx context.Context, id int64, now, cutoff time.Time) error {
	return j.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		entry, err := loadLocked(ctx, tx.Waitlist.GetByID, id)
		if err != nil {
			return err
		}
		if entry.Status != domain.WaitlistStatusOffered || entry.OfferedAt == nil || entry.OfferedAt.After(cutoff) {
			return errSkip
		}

		var holding *domain.Reservation
		if entry.ReservationID != nil {
			holding, err = tx.Reservations.GetByID(ctx, *entry.ReservationID, false)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("load holding reservation: %w", err)
			}
		}
		if holding != nil && !holding.IsTerminal() {
			if err := booking.CancelReservation(ctx, tx, j.codes, j.inventory, holding); err != nil {
				return err
			}
		}

		entry.Status = domain.WaitlistStatusWaiting
		entry.EnqueueTime = now
		entry.OfferedAt = nil
		entry.ReservationID = nil
		if err := tx.Waitlist.Update(ctx, entry); err != nil {
			return fmt.Errorf("requeue waitlist entry: %w", err)
		}

		if j.notifier != nil && holding != nil {
			customer, err := customers.Load(ctx, tx, entry.CustomerID)
			if err != nil {
				return fmt.Errorf("load customer: %w", err)
			}
			if customer.HasContact() {
				event := notify.ForReservation(notify.EventOfferExpired, customer, holding, now)
				event.ConfirmationCode = entry.ConfirmationCode
				tx.AfterCommit(func(ctx context.Context) {
					j.notifier.Notify(ctx, event)
				})
			}
		}
		j.log.Info(j.log.WithFields(ctx, map[string]any{
			"entry_id": entry.ID,
			"code":     entry.ConfirmationCode,
		}), "offer expired, entry requeued")
		return nil
	})
}
