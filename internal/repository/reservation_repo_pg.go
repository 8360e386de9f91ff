package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `id, customer_id, reservation_time, party_size, status, arrival_time, leave_time,
	created_at, confirmation_code, table_number, table_held, source, reminder_sent, reminder_sent_at`

type PGReservationRepository struct {
	db DBTX
}

func NewReservationRepository(db DBTX) ReservationRepository {
	return &PGReservationRepository{db: db}
}

func (r *PGReservationRepository) Insert(ctx context.Context, res *domain.Reservation) error {
	return r.db.QueryRow(ctx, `INSERT INTO reservations
		(customer_id, reservation_time, party_size, status, arrival_time, confirmation_code, table_number, table_held, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		res.CustomerID, res.ReservationTime, res.PartySize, res.Status, res.ArrivalTime,
		res.ConfirmationCode, res.TableNumber, res.TableHeld, res.Source).
		Scan(&res.ID, &res.CreatedAt)
}

func (r *PGReservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	cmd, err := r.db.Exec(ctx, `UPDATE reservations SET
		status = $2, arrival_time = $3, leave_time = $4, table_number = $5, table_held = $6,
		reminder_sent = $7, reminder_sent_at = $8
		WHERE id = $1`,
		res.ID, res.Status, res.ArrivalTime, res.LeaveTime, res.TableNumber, res.TableHeld,
		res.ReminderSent, res.ReminderSentAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGReservationRepository) GetByID(ctx context.Context, id int64, skipLocked bool) (*domain.Reservation, error) {
	lock := ` FOR UPDATE`
	if skipLocked {
		lock = ` FOR UPDATE SKIP LOCKED`
	}
	return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`+lock, id)
}

func (r *PGReservationRepository) GetActiveByCode(ctx context.Context, code int) (*domain.Reservation, error) {
	return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE confirmation_code = $1 AND status = 'ACTIVE'
		FOR UPDATE`, code)
}

func (r *PGReservationRepository) GetLatestByCode(ctx context.Context, code int) (*domain.Reservation, error) {
	return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE confirmation_code = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, code)
}

func (r *PGReservationRepository) BookedTables(ctx context.Context, from, to time.Time, excludeID int64) (map[int]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT table_number FROM reservations
		WHERE status = 'ACTIVE'
		  AND table_number IS NOT NULL
		  AND id <> $3
		  AND reservation_time < $2
		  AND reservation_time + interval '2 hours' > $1`, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := make(map[int]bool)
	for rows.Next() {
		var number int
		if err := rows.Scan(&number); err != nil {
			return nil, err
		}
		booked[number] = true
	}
	return booked, rows.Err()
}

func (r *PGReservationRepository) ClaimDueUnseated(ctx context.Context, table, maxParty int, now time.Time) (*domain.Reservation, error) {
	return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations r
		WHERE r.status = 'ACTIVE'
		  AND r.table_number IS NULL
		  AND r.party_size <= $2
		  AND r.reservation_time <= $3
		  AND NOT EXISTS (
			SELECT 1 FROM reservations o
			WHERE o.status = 'ACTIVE'
			  AND o.table_number = $1
			  AND o.id <> r.id
			  AND o.reservation_time < r.reservation_time + interval '2 hours'
			  AND o.reservation_time + interval '2 hours' > r.reservation_time)
		ORDER BY r.reservation_time, r.created_at
		LIMIT 1
		FOR UPDATE OF r SKIP LOCKED`, table, maxParty, now)
}

func (r *PGReservationRepository) HolderOf(ctx context.Context, table int) (*domain.Reservation, error) {
	return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'ACTIVE' AND table_number = $1 AND table_held
		LIMIT 1
		FOR UPDATE`, table)
}

func (r *PGReservationRepository) ListNoShowIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return r.ids(ctx, `SELECT id FROM reservations
		WHERE status = 'ACTIVE'
		  AND source = 'REGULAR'
		  AND arrival_time IS NULL
		  AND reservation_time <= $1
		ORDER BY reservation_time`, cutoff)
}

func (r *PGReservationRepository) ListReminderDueIDs(ctx context.Context, from, to time.Time) ([]int64, error) {
	return r.ids(ctx, `SELECT id FROM reservations
		WHERE status = 'ACTIVE'
		  AND NOT reminder_sent
		  AND reservation_time > $1
		  AND reservation_time <= $2
		ORDER BY reservation_time`, from, to)
}

func (r *PGReservationRepository) MarkReminderSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE reservations
		SET reminder_sent = TRUE, reminder_sent_at = $2
		WHERE id = $1 AND status = 'ACTIVE' AND NOT reminder_sent`, id, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *PGReservationRepository) one(ctx context.Context, query string, args ...any) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&res.ID, &res.CustomerID, &res.ReservationTime, &res.PartySize, &res.Status,
		&res.ArrivalTime, &res.LeaveTime, &res.CreatedAt, &res.ConfirmationCode,
		&res.TableNumber, &res.TableHeld, &res.Source, &res.ReminderSent, &res.ReminderSentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *PGReservationRepository) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
