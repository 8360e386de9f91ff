// Package inventory guards each table's occupied flag.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/repository"
)

// Listener is told about a table once the transaction freeing it commits.
type Listener func(ctx context.Context, table int)

type Inventory struct {
	store     repository.Store
	listeners []Listener
}

func New(store repository.Store) *Inventory {
	return &Inventory{store: store}
}

// Subscribe registers l for table-freed events. Call it while wiring, before
// the inventory is shared.
func (i *Inventory) Subscribe(l Listener) {
	i.listeners = append(i.listeners, l)
}

// Reserve flips table from free to occupied. False means someone else holds it.
func (i *Inventory) Reserve(ctx context.Context, tx *repository.Tx, table int) (bool, error) {
	won, err := tx.Tables.TryOccupy(ctx, table)
	if err != nil {
		return false, fmt.Errorf("reserve table %d: %w", table, err)
	}
	return won, nil
}

// Release frees table and announces it after commit.
func (i *Inventory) Release(ctx context.Context, tx *repository.Tx, table int) error {
	if err := i.ReleaseQuietly(ctx, tx, table); err != nil {
		return err
	}
	i.Announce(tx, table)
	return nil
}

// Announce emits a table-freed event after commit without touching the
// occupied flag. Used when a planned booking on a free table goes away.
func (i *Inventory) Announce(tx *repository.Tx, table int) {
	tx.AfterCommit(func(ctx context.Context) {
		i.emit(ctx, table)
	})
}

// ReleaseQuietly frees table without an event.
func (i *Inventory) ReleaseQuietly(ctx context.Context, tx *repository.Tx, table int) error {
	if err := tx.Tables.Free(ctx, table); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Newf(apperrors.CodeNotFound, apperrors.ReasonNone, "table %d not found", table)
		}
		return fmt.Errorf("release table %d: %w", table, err)
	}
	return nil
}

// ReleaseNow is Release in its own transaction.
func (i *Inventory) ReleaseNow(ctx context.Context, table int) error {
	return i.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
		return i.Release(ctx, tx, table)
	})
}

func (i *Inventory) emit(ctx context.Context, table int) {
	for _, l := range i.listeners {
		l(ctx, table)
	}
}
