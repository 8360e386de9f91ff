package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type PGTableRepository struct {
	db DBTX
}

func NewTableRepository(db DBTX) TableRepository {
	return &PGTableRepository{db: db}
}

func (r *PGTableRepository) ListEnabled(ctx context.Context) ([]domain.Table, error) {
	return r.list(ctx, `SELECT number, capacity, enabled, occupied FROM restaurant_tables
		WHERE enabled
		ORDER BY capacity, number`)
}

func (r *PGTableRepository) Get(ctx context.Context, number int) (*domain.Table, error) {
	var t domain.Table
	err := r.db.QueryRow(ctx, `SELECT number, capacity, enabled, occupied FROM restaurant_tables WHERE number = $1`, number).
		Scan(&t.Number, &t.Capacity, &t.Enabled, &t.Occupied)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PGTableRepository) MaxEnabledCapacity(ctx context.Context) (int, error) {
	var capacity int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(capacity), 0) FROM restaurant_tables WHERE enabled`).Scan(&capacity)
	return capacity, err
}

func (r *PGTableRepository) TryOccupy(ctx context.Context, number int) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE restaurant_tables SET occupied = TRUE
		WHERE number = $1 AND enabled AND NOT occupied`, number)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *PGTableRepository) Free(ctx context.Context, number int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE restaurant_tables SET occupied = FALSE WHERE number = $1`, number)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGTableRepository) ListFree(ctx context.Context, minCapacity int) ([]domain.Table, error) {
	return r.list(ctx, `SELECT number, capacity, enabled, occupied FROM restaurant_tables
		WHERE enabled AND NOT occupied AND capacity >= $1
		ORDER BY capacity, number`, minCapacity)
}

func (r *PGTableRepository) Save(ctx context.Context, t domain.Table) error {
	_, err := r.db.Exec(ctx, `INSERT INTO restaurant_tables (number, capacity, enabled, occupied)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (number) DO UPDATE SET capacity = EXCLUDED.capacity, enabled = EXCLUDED.enabled`,
		t.Number, t.Capacity, t.Enabled, t.Occupied)
	return err
}

func (r *PGTableRepository) list(ctx context.Context, query string, args ...any) ([]domain.Table, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make([]domain.Table, 0)
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.Number, &t.Capacity, &t.Enabled, &t.Occupied); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

var _ TableRepository = (*PGTableRepository)(nil)
