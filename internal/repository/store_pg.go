package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/pool"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgExclusionViolation  = "23P01"
	pgUniqueViolation     = "23505"
	pgSerializationFailed = "40001"
	pgDeadlockDetected    = "40P01"
)

// PGStore runs units of work on PostgreSQL handles borrowed from the pool.
type PGStore struct {
	pool *pool.Pool[*pgx.Conn]
	log  *logger.Logger
}

func NewPGStore(p *pool.Pool[*pgx.Conn], log *logger.Logger) *PGStore {
	if log == nil {
		log = logger.Nop()
	}
	return &PGStore{pool: p, log: log}
}

// PGDialer opens one connection per call; the pool decides how long it lives.
func PGDialer(dsn string) pool.Dialer[*pgx.Conn] {
	return func(ctx context.Context) (*pgx.Conn, error) {
		return pgx.Connect(ctx, dsn)
	}
}

// PGConnAlive lets the pool drop connections pgx has already closed.
func PGConnAlive(conn *pgx.Conn) bool {
	return conn != nil && !conn.IsClosed()
}

func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	unit, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	unit.RunAfterCommit(context.WithoutCancel(ctx))
	return nil
}

func (s *PGStore) run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (*Tx, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeResourceExhausted, err, "store unreachable").
			WithReason(apperrors.ReasonStoreUnreachable)
	}
	defer s.pool.Release(conn)

	pgTx, err := conn.Handle().BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeResourceExhausted, err, "begin transaction").
			WithReason(apperrors.ReasonStoreUnreachable)
	}
	defer pgTx.Rollback(ctx)

	unit := newPGTx(pgTx)
	if err := fn(ctx, unit); err != nil {
		return nil, MapPGError(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		s.log.Warn(ctx, "commit failed: "+err.Error())
		return nil, MapPGError(err)
	}
	return unit, nil
}

func newPGTx(db DBTX) *Tx {
	return &Tx{
		Reservations: NewReservationRepository(db),
		Tables:       NewTableRepository(db),
		Waitlist:     NewWaitlistRepository(db),
		Codes:        NewCodeRepository(db),
		Hours:        NewHoursRepository(db),
		Customers:    NewCustomerRepository(db),
	}
}

// MapPGError turns constraint and serialization failures into retryable
// concurrency conflicts. Typed application errors pass through untouched.
func MapPGError(err error) error {
	if err == nil || apperrors.As(err) != nil {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		return apperrors.Wrap(apperrors.CodeConcurrencyConflict, err, "table already booked for an overlapping span").
			WithReason(apperrors.ReasonReservationOverlaps)
	case pgUniqueViolation:
		return apperrors.Wrap(apperrors.CodeConcurrencyConflict, err, "concurrent write on a unique value")
	case pgSerializationFailed, pgDeadlockDetected:
		return apperrors.Wrap(apperrors.CodeConcurrencyConflict, err, "transaction lost a race, retry")
	}
	return err
}

var _ Store = (*PGStore)(nil)
