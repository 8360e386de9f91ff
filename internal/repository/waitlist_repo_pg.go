package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

const waitlistColumns = `id, confirmation_code, customer_id, party_size, enqueue_time, status, offered_at, reservation_id`

type PGWaitlistRepository struct {
	db DBTX
}

func NewWaitlistRepository(db DBTX) WaitlistRepository {
	return &PGWaitlistRepository{db: db}
}

func (r *PGWaitlistRepository) Insert(ctx context.Context, e *domain.WaitlistEntry) error {
	return r.db.QueryRow(ctx, `INSERT INTO waitlist_entries
		(confirmation_code, customer_id, party_size, enqueue_time, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		e.ConfirmationCode, e.CustomerID, e.PartySize, e.EnqueueTime, e.Status).
		Scan(&e.ID)
}

func (r *PGWaitlistRepository) Update(ctx context.Context, e *domain.WaitlistEntry) error {
	cmd, err := r.db.Exec(ctx, `UPDATE waitlist_entries SET
		status = $2, enqueue_time = $3, offered_at = $4, reservation_id = $5
		WHERE id = $1`,
		e.ID, e.Status, e.EnqueueTime, e.OfferedAt, e.ReservationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGWaitlistRepository) GetByID(ctx context.Context, id int64, skipLocked bool) (*domain.WaitlistEntry, error) {
	lock := ` FOR UPDATE`
	if skipLocked {
		lock = ` FOR UPDATE SKIP LOCKED`
	}
	return r.one(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1`+lock, id)
}

func (r *PGWaitlistRepository) GetActiveByCode(ctx context.Context, code int) (*domain.WaitlistEntry, error) {
	return r.one(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE confirmation_code = $1 AND status IN ('WAITING', 'OFFERED')
		FOR UPDATE`, code)
}

func (r *PGWaitlistRepository) GetLatestByCode(ctx context.Context, code int) (*domain.WaitlistEntry, error) {
	return r.one(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE confirmation_code = $1
		ORDER BY id DESC
		LIMIT 1`, code)
}

func (r *PGWaitlistRepository) ClaimNextWaiting(ctx context.Context, maxParty int) (*domain.WaitlistEntry, error) {
	return r.one(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE status = 'WAITING' AND party_size <= $1
		ORDER BY enqueue_time, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, maxParty)
}

func (r *PGWaitlistRepository) ListExpiredOfferIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM waitlist_entries
		WHERE status = 'OFFERED' AND offered_at <= $1
		ORDER BY offered_at`, cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *PGWaitlistRepository) one(ctx context.Context, query string, args ...any) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&e.ID, &e.ConfirmationCode, &e.CustomerID, &e.PartySize, &e.EnqueueTime,
		&e.Status, &e.OfferedAt, &e.ReservationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

var _ WaitlistRepository = (*PGWaitlistRepository)(nil)
