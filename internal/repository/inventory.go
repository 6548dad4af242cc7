package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tokoku/commerce/internal/domain/inventory"
)

const (
	// The insert succeeds only when on-hand stock minus the other active
	// reservations still covers the requested quantity. Check and insert
	// happen in one statement so two checkouts cannot both pass.
	reserveStockSQL = `INSERT INTO stock_reservations (id, variant_id, customer_ref, quantity, expires_at, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		FROM product_variants v
		WHERE v.id = $2
		  AND v.stock_quantity - COALESCE((
				SELECT SUM(r.quantity) FROM stock_reservations r
				WHERE r.variant_id = $2 AND r.expires_at > $6
			), 0) >= $4`

	commitStockSQL = `UPDATE product_variants
		SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`

	restoreStockSQL = `UPDATE product_variants
		SET stock_quantity = stock_quantity + $2
		WHERE id = $1`

	deleteReservationsSQL = `DELETE FROM stock_reservations
		WHERE customer_ref = $1 AND variant_id = ANY($2)`

	deleteExpiredReservationsSQL = `DELETE FROM stock_reservations WHERE expires_at <= $1`
)

var _ inventory.Ops = (*Store)(nil)

// Reserve inserts an advisory reservation conditioned on available stock.
func (s *Store) Reserve(ctx context.Context, r *inventory.Reservation) (bool, error) {
	return reserve(ctx, s.db, r)
}

// CommitStock permanently decrements on-hand stock.
func (s *Store) CommitStock(ctx context.Context, variantID string, qty int) (bool, error) {
	return commitStock(ctx, s.db, variantID, qty)
}

// RestoreStock adds qty back onto the variant's stock counter.
func (s *Store) RestoreStock(ctx context.Context, variantID string, qty int) error {
	return restoreStock(ctx, s.db, variantID, qty)
}

// DeleteExpiredReservations removes reservation rows past the cutoff. Stock
// counters are left alone; reservations never held real stock.
func (s *Store) DeleteExpiredReservations(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteExpiredReservationsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *storeTx) Reserve(ctx context.Context, r *inventory.Reservation) (bool, error) {
	return reserve(ctx, t.q, r)
}

func (t *storeTx) CommitStock(ctx context.Context, variantID string, qty int) (bool, error) {
	return commitStock(ctx, t.q, variantID, qty)
}

func (t *storeTx) RestoreStock(ctx context.Context, variantID string, qty int) error {
	return restoreStock(ctx, t.q, variantID, qty)
}

// DeleteReservations removes the customer's reservation rows for the given
// variants, typically on cancellation.
func (t *storeTx) DeleteReservations(ctx context.Context, customerRef string, variantIDs []string) error {
	_, err := t.q.Exec(ctx, deleteReservationsSQL, customerRef, variantIDs)
	if err != nil {
		return fmt.Errorf("deleting reservations for customer %q: %w", customerRef, err)
	}
	return nil
}

func reserve(ctx context.Context, q querier, r *inventory.Reservation) (bool, error) {
	tag, err := q.Exec(ctx, reserveStockSQL,
		r.ID, r.VariantID, r.CustomerRef, r.Quantity, r.ExpiresAt, r.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("reserving %d of variant %q: %w", r.Quantity, r.VariantID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func commitStock(ctx context.Context, q querier, variantID string, qty int) (bool, error) {
	tag, err := q.Exec(ctx, commitStockSQL, variantID, qty)
	if err != nil {
		return false, fmt.Errorf("decrementing stock of variant %q: %w", variantID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func restoreStock(ctx context.Context, q querier, variantID string, qty int) error {
	_, err := q.Exec(ctx, restoreStockSQL, variantID, qty)
	if err != nil {
		return fmt.Errorf("restoring stock of variant %q: %w", variantID, err)
	}
	return nil
}
