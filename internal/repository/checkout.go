package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/tokoku/commerce/internal/domain/checkout"
)

const resolveAddressSQL = `SELECT id, postcode FROM addresses
	WHERE id = $2 AND customer_ref = $1`

// CheckoutStore narrows Store to the checkout orchestrator's transaction
// surface. Both Store.InTx variants run over the same underlying transaction
// machinery.
type CheckoutStore struct {
	*Store
}

var _ checkout.Store = CheckoutStore{}
var _ checkout.Tx = (*storeTx)(nil)
var _ checkout.AddressResolver = (*Store)(nil)

// InTx runs fn inside a single storage transaction.
func (s CheckoutStore) InTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	return s.Store.inTx(ctx, func(q querier) error {
		return fn(&storeTx{q: q})
	})
}

// Resolve returns the customer's address, or ErrInvalidAddress when the
// reference does not exist or belongs to someone else.
func (s *Store) Resolve(ctx context.Context, customerRef, addressRef string) (*checkout.Address, error) {
	rows, err := s.db.Query(ctx, resolveAddressSQL, customerRef, addressRef)
	if err != nil {
		return nil, fmt.Errorf("resolving address %q: %w", addressRef, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (checkout.Address, error) {
		var a checkout.Address
		err := row.Scan(&a.ID, &a.Postcode)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrInvalidAddress
		}
		return nil, fmt.Errorf("resolving address %q: %w", addressRef, err)
	}
	return &a, nil
}
