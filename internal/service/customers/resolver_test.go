package customers

import (
	"context"
	"testing"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, store *memory.Store, id domain.Identity) (*domain.Customer, error) {
	t.Helper()
	var c *domain.Customer
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx *repository.Tx) error {
		var err error
		c, err = Resolve(ctx, tx, id)
		return err
	})
	return c, err
}

func TestResolve_ReusesGuestByEmailThenPhone(t *testing.T) {
	store := memory.New()

	first, err := resolve(t, store, domain.Identity{Contact: &domain.Contact{Name: "Ada", Email: "ada@example.com", Phone: "+49111"}})
	require.NoError(t, err)

	byEmail, err := resolve(t, store, domain.Identity{Contact: &domain.Contact{Name: "Ada L", Email: "ADA@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, byEmail.ID)

	byPhone, err := resolve(t, store, domain.Identity{Contact: &domain.Contact{Name: "A", Phone: "+49111"}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, byPhone.ID)

	other, err := resolve(t, store, domain.Identity{Contact: &domain.Contact{Name: "Bob", Phone: "+49222"}})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestResolve_Subscriber(t *testing.T) {
	store := memory.New()
	subscriber := int64(77)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx *repository.Tx) error {
		return tx.Customers.Insert(ctx, &domain.Customer{SubscriberID: &subscriber, Name: "Member"})
	}))

	c, err := resolve(t, store, domain.Identity{SubscriberID: 77})
	require.NoError(t, err)
	assert.Equal(t, "Member", c.Name)

	_, err = resolve(t, store, domain.Identity{SubscriberID: 78})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestValidateIdentity(t *testing.T) {
	assert.Error(t, ValidateIdentity(domain.Identity{}))
	assert.Error(t, ValidateIdentity(domain.Identity{SubscriberID: 1, Contact: &domain.Contact{Name: "x", Email: "x@y.z"}}))
	assert.Error(t, ValidateIdentity(domain.Identity{Contact: &domain.Contact{Name: "x"}}))
	assert.NoError(t, ValidateIdentity(domain.Identity{SubscriberID: 1}))
	assert.NoError(t, ValidateIdentity(domain.Identity{Contact: &domain.Contact{Name: "x", Phone: "+4912345"}}))
}
