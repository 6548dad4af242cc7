package inventory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Ledger maintains authoritative stock counts and advisory reservations. The
// checkout orchestrator performs the same operations transactionally through
// its own store; the Ledger is the standalone surface used by background
// sweeps and administrative stock corrections.
type Ledger struct {
	store Ops
	clock func() time.Time
}

// NewLedger constructs a Ledger. A nil clock defaults to time.Now.
func NewLedger(store Ops, clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{store: store, clock: clock}
}

// Reserve places an advisory hold of qty units on the variant for the
// customer, expiring after ttl. Fails with *InsufficientStockError when
// available stock cannot cover the quantity at the instant of the insert.
// Reservations are advisory: concurrent holders can still race for the final
// permanent decrement.
func (l *Ledger) Reserve(ctx context.Context, variantID, customerRef string, qty int, ttl time.Duration) (*Reservation, error) {
	if qty <= 0 {
		return nil, errors.New("reserve quantity must be positive")
	}
	now := l.clock().UTC()
	r := &Reservation{
		ID:          uuid.New().String(),
		VariantID:   variantID,
		CustomerRef: customerRef,
		Quantity:    qty,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	ok, err := l.store.Reserve(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "reserve stock")
	}
	if !ok {
		return nil, &InsufficientStockError{VariantID: variantID, Requested: qty}
	}
	return r, nil
}

// Commit permanently decrements the variant's on-hand stock. Called at order
// creation, immediately after a successful reservation.
func (l *Ledger) Commit(ctx context.Context, variantID string, qty int) error {
	ok, err := l.store.CommitStock(ctx, variantID, qty)
	if err != nil {
		return errors.Wrap(err, "commit stock")
	}
	if !ok {
		return &InsufficientStockError{VariantID: variantID, Requested: qty}
	}
	return nil
}

// Release increments the variant's on-hand stock. Called on cancellation; it
// is the only path that restores stock.
func (l *Ledger) Release(ctx context.Context, variantID string, qty int) error {
	if qty <= 0 {
		return errors.New("release quantity must be positive")
	}
	return l.store.RestoreStock(ctx, variantID, qty)
}

// SweepExpired deletes reservations past their expiry. The permanent
// decrement already happened at order creation, so the sweep only cleans
// bookkeeping rows; it does not restore stock.
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpiredReservations(ctx, l.clock().UTC())
}
