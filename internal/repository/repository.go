package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("repository: not found")

// DBTX is the subset of pgx.Tx the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ReservationRepository interface {
	Insert(ctx context.Context, r *domain.Reservation) error
	Update(ctx context.Context, r *domain.Reservation) error
	// GetByID locks the row. With skipLocked a row held by another
	// transaction yields ErrNotFound instead of waiting.
	GetByID(ctx context.Context, id int64, skipLocked bool) (*domain.Reservation, error)
	// GetActiveByCode locks the ACTIVE reservation carrying code.
	GetActiveByCode(ctx context.Context, code int) (*domain.Reservation, error)
	// GetLatestByCode returns the most recent reservation that ever carried code.
	GetLatestByCode(ctx context.Context, code int) (*domain.Reservation, error)
	// BookedTables reports the tables that have an ACTIVE reservation
	// overlapping [from, to), ignoring reservation excludeID.
	BookedTables(ctx context.Context, from, to time.Time, excludeID int64) (map[int]bool, error)
	// ClaimDueUnseated locks the oldest ACTIVE reservation that has no table,
	// fits maxParty, is due by now and does not overlap another ACTIVE
	// reservation on table.
	ClaimDueUnseated(ctx context.Context, table, maxParty int, now time.Time) (*domain.Reservation, error)
	// HolderOf returns the ACTIVE reservation currently holding table.
	HolderOf(ctx context.Context, table int) (*domain.Reservation, error)
	ListNoShowIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
	ListReminderDueIDs(ctx context.Context, from, to time.Time) ([]int64, error)
	// MarkReminderSent flips the reminder flag once; false means it was already set.
	MarkReminderSent(ctx context.Context, id int64, at time.Time) (bool, error)
}

type TableRepository interface {
	// ListEnabled returns enabled tables ordered by (capacity, number).
	ListEnabled(ctx context.Context) ([]domain.Table, error)
	Get(ctx context.Context, number int) (*domain.Table, error)
	MaxEnabledCapacity(ctx context.Context) (int, error)
	// TryOccupy is the compare-and-set free to occupied. It reports whether
	// this call won the table.
	TryOccupy(ctx context.Context, number int) (bool, error)
	Free(ctx context.Context, number int) error
	// ListFree returns enabled unoccupied tables seating at least minCapacity.
	ListFree(ctx context.Context, minCapacity int) ([]domain.Table, error)
	Save(ctx context.Context, t domain.Table) error
}

type WaitlistRepository interface {
	Insert(ctx context.Context, e *domain.WaitlistEntry) error
	Update(ctx context.Context, e *domain.WaitlistEntry) error
	GetByID(ctx context.Context, id int64, skipLocked bool) (*domain.WaitlistEntry, error)
	// GetActiveByCode locks the WAITING or OFFERED entry carrying code.
	GetActiveByCode(ctx context.Context, code int) (*domain.WaitlistEntry, error)
	// GetLatestByCode returns the most recent entry that ever carried code.
	GetLatestByCode(ctx context.Context, code int) (*domain.WaitlistEntry, error)
	// ClaimNextWaiting locks the earliest WAITING entry that fits maxParty.
	ClaimNextWaiting(ctx context.Context, maxParty int) (*domain.WaitlistEntry, error)
	ListExpiredOfferIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type CodeRepository interface {
	// ClaimFree flips the longest-freed code back into use.
	ClaimFree(ctx context.Context) (int, bool, error)
	// InsertInUse adds a new in-use code; false means it already exists.
	InsertInUse(ctx context.Context, code int) (bool, error)
	Release(ctx context.Context, code int, at time.Time) error
	Get(ctx context.Context, code int) (*domain.ConfirmationCode, error)
}

type HoursRepository interface {
	// Window returns the hours that apply to the calendar date of day.
	// ok is false when neither an override nor a weekday default exists.
	Window(ctx context.Context, day time.Time) (domain.OpeningWindow, bool, error)
	SetWeekly(ctx context.Context, h domain.WeeklyHours) error
	SetOverride(ctx context.Context, h domain.HoursOverride) error
}

type CustomerRepository interface {
	Insert(ctx context.Context, c *domain.Customer) error
	GetByID(ctx context.Context, id int64) (*domain.Customer, error)
	GetBySubscriber(ctx context.Context, subscriberID int64) (*domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (*domain.Customer, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Customer, error)
}

// Tx is one unit of work against the store.
type Tx struct {
	Reservations ReservationRepository
	Tables       TableRepository
	Waitlist     WaitlistRepository
	Codes        CodeRepository
	Hours        HoursRepository
	Customers    CustomerRepository

	afterCommit []func(ctx context.Context)
}

// AfterCommit registers fn to run once the transaction commits and its store
// handle is back in the pool. Hooks never run on rollback.
func (t *Tx) AfterCommit(fn func(ctx context.Context)) {
	t.afterCommit = append(t.afterCommit, fn)
}

// RunAfterCommit is called by Store implementations after a successful commit.
func (t *Tx) RunAfterCommit(ctx context.Context) {
	hooks := t.afterCommit
	t.afterCommit = nil
	for _, fn := range hooks {
		fn(ctx)
	}
}

// Store runs fn inside a transaction. fn's error rolls everything back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error
}
