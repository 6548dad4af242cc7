package inventory

import (
	"context"
	"fmt"
	"time"
)

// Reservation is an advisory, time-bounded hold against a variant's available
// stock. It sits on top of the permanent decrement applied at order creation
// and is deleted on completion, cancellation, or expiry sweep.
type Reservation struct {
	ID          string
	VariantID   string
	CustomerRef string
	Quantity    int
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// InsufficientStockError reports that a variant's available stock could not
// cover a requested quantity.
type InsufficientStockError struct {
	VariantID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s (requested %d)", e.VariantID, e.Requested)
}

// Ops is the set of atomic stock operations the ledger runs against storage.
// Every conditional operation checks and mutates in a single statement; there
// is no read-then-write anywhere in the ledger.
type Ops interface {
	// Reserve inserts the reservation only if the variant's available stock
	// (on-hand minus active reservations) covers its quantity, atomically.
	// Returns false when availability was insufficient.
	Reserve(ctx context.Context, r *Reservation) (bool, error)
	// CommitStock permanently decrements on-hand stock, conditioned on
	// stock_quantity >= qty so the counter can never go negative. Returns
	// false when the condition failed.
	CommitStock(ctx context.Context, variantID string, qty int) (bool, error)
	// RestoreStock increments on-hand stock.
	RestoreStock(ctx context.Context, variantID string, qty int) error
	// DeleteExpiredReservations removes reservation rows past the cutoff and
	// reports how many were removed. Stock counters are not touched.
	DeleteExpiredReservations(ctx context.Context, cutoff time.Time) (int64, error)
}
