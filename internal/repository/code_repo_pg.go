package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type PGCodeRepository struct {
	db DBTX
}

func NewCodeRepository(db DBTX) CodeRepository {
	return &PGCodeRepository{db: db}
}

func (r *PGCodeRepository) ClaimFree(ctx context.Context) (int, bool, error) {
	var code int
	err := r.db.QueryRow(ctx, `UPDATE confirmation_codes SET in_use = TRUE, freed_at = NULL
		WHERE code = (
			SELECT code FROM confirmation_codes
			WHERE NOT in_use
			ORDER BY freed_at NULLS FIRST, code
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING code`).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return code, true, nil
}

func (r *PGCodeRepository) InsertInUse(ctx context.Context, code int) (bool, error) {
	cmd, err := r.db.Exec(ctx, `INSERT INTO confirmation_codes (code, in_use) VALUES ($1, TRUE)
		ON CONFLICT (code) DO NOTHING`, code)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *PGCodeRepository) Release(ctx context.Context, code int, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE confirmation_codes SET in_use = FALSE, freed_at = $2
		WHERE code = $1 AND in_use`, code, at)
	return err
}

func (r *PGCodeRepository) Get(ctx context.Context, code int) (*domain.ConfirmationCode, error) {
	var c domain.ConfirmationCode
	err := r.db.QueryRow(ctx, `SELECT code, in_use, freed_at FROM confirmation_codes WHERE code = $1`, code).
		Scan(&c.Code, &c.InUse, &c.FreedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CodeRepository = (*PGCodeRepository)(nil)
