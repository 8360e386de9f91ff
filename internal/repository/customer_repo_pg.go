package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type PGCustomerRepository struct {
	db DBTX
}

func NewCustomerRepository(db DBTX) CustomerRepository {
	return &PGCustomerRepository{db: db}
}

func (r *PGCustomerRepository) Insert(ctx context.Context, c *domain.Customer) error {
	return r.db.QueryRow(ctx, `INSERT INTO customers (subscriber_id, name, email, phone)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		RETURNING id`, c.SubscriberID, c.Name, c.Email, c.Phone).Scan(&c.ID)
}

func (r *PGCustomerRepository) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	return r.one(ctx, `WHERE id = $1`, id)
}

func (r *PGCustomerRepository) GetBySubscriber(ctx context.Context, subscriberID int64) (*domain.Customer, error) {
	return r.one(ctx, `WHERE subscriber_id = $1`, subscriberID)
}

func (r *PGCustomerRepository) FindByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return r.one(ctx, `WHERE lower(email) = lower($1) ORDER BY id LIMIT 1`, email)
}

func (r *PGCustomerRepository) FindByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return r.one(ctx, `WHERE phone = $1 ORDER BY id LIMIT 1`, phone)
}

func (r *PGCustomerRepository) one(ctx context.Context, where string, args ...any) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.QueryRow(ctx, `SELECT id, subscriber_id, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM customers `+where, args...).
		Scan(&c.ID, &c.SubscriberID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CustomerRepository = (*PGCustomerRepository)(nil)
