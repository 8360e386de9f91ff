// Package customers maps a request identity onto a stored customer.
package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/repository"
)

// ValidateIdentity checks that exactly one kind of identity was supplied.
func ValidateIdentity(id domain.Identity) error {
	switch {
	case id.SubscriberID == 0 && id.Contact == nil:
		return apperrors.New(apperrors.CodeValidation, "identity requires a subscriber id or contact details").
			WithDetails(map[string]string{"identity": "is required"})
	case id.SubscriberID != 0 && id.Contact != nil:
		return apperrors.New(apperrors.CodeValidation, "identity must be either a subscriber or contact details").
			WithDetails(map[string]string{"identity": "is ambiguous"})
	case id.Contact != nil && id.Contact.Email == "" && id.Contact.Phone == "":
		return apperrors.New(apperrors.CodeValidation, "contact needs an email or a phone number").
			WithDetails(map[string]string{"identity.contact": "needs email or phone"})
	}
	return nil
}

// Resolve returns the subscriber's customer record, or for walk-in contact
// details reuses a guest matched by email then phone and creates one otherwise.
func Resolve(ctx context.Context, tx *repository.Tx, id domain.Identity) (*domain.Customer, error) {
	if id.SubscriberID != 0 {
		c, err := tx.Customers.GetBySubscriber(ctx, id.SubscriberID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, apperrors.ReasonNone, "subscriber %d not found", id.SubscriberID)
		}
		if err != nil {
			return nil, fmt.Errorf("load subscriber: %w", err)
		}
		return c, nil
	}

	contact := id.Contact
	if contact.Email != "" {
		c, err := tx.Customers.FindByEmail(ctx, contact.Email)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find customer by email: %w", err)
		}
	}
	if contact.Phone != "" {
		c, err := tx.Customers.FindByPhone(ctx, contact.Phone)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find customer by phone: %w", err)
		}
	}

	guest := &domain.Customer{Name: contact.Name, Email: contact.Email, Phone: contact.Phone}
	if err := tx.Customers.Insert(ctx, guest); err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	return guest, nil
}

// Load fetches a customer for notification purposes; a missing row is not an error.
func Load(ctx context.Context, tx *repository.Tx, id int64) (*domain.Customer, error) {
	c, err := tx.Customers.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return c, err
}
