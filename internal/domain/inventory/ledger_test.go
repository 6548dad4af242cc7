package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/commerce/internal/domain/inventory"
	"github.com/tokoku/commerce/internal/domain/product"
	"github.com/tokoku/commerce/internal/memstore"
)

var testClock = func() time.Time {
	return time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
}

func newLedger(stock int) (*inventory.Ledger, *memstore.Store) {
	store := memstore.New()
	store.PutVariant(product.Variant{ID: "var-1", StockQuantity: stock, Active: true, ProductActive: true})
	return inventory.NewLedger(memstore.InventoryOps{S: store}, testClock), store
}

func TestReserve_Succeeds(t *testing.T) {
	ledger, store := newLedger(10)

	r, err := ledger.Reserve(context.Background(), "var-1", "cust-1", 4, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "var-1", r.VariantID)
	assert.Equal(t, 4, r.Quantity)
	assert.Equal(t, testClock().Add(time.Hour), r.ExpiresAt)

	// Reservations are advisory: the on-hand counter is untouched.
	assert.Equal(t, 10, store.StockOf("var-1"))
	assert.Equal(t, 1, store.ReservationCount())
}

func TestReserve_CountsActiveReservationsAgainstAvailability(t *testing.T) {
	ledger, _ := newLedger(10)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "var-1", "cust-1", 7, time.Hour)
	require.NoError(t, err)

	// 3 units left available; 4 must fail.
	_, err = ledger.Reserve(ctx, "var-1", "cust-2", 4, time.Hour)
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "var-1", insufficient.VariantID)
	assert.Equal(t, 4, insufficient.Requested)

	_, err = ledger.Reserve(ctx, "var-1", "cust-2", 3, time.Hour)
	assert.NoError(t, err)
}

func TestReserve_RejectsNonPositiveQuantity(t *testing.T) {
	ledger, _ := newLedger(10)
	_, err := ledger.Reserve(context.Background(), "var-1", "cust-1", 0, time.Hour)
	assert.Error(t, err)
}

func TestCommit_DecrementsStock(t *testing.T) {
	ledger, store := newLedger(10)

	require.NoError(t, ledger.Commit(context.Background(), "var-1", 6))
	assert.Equal(t, 4, store.StockOf("var-1"))
}

func TestCommit_NeverGoesNegative(t *testing.T) {
	ledger, store := newLedger(5)

	err := ledger.Commit(context.Background(), "var-1", 6)
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, store.StockOf("var-1"))
}

func TestRelease_RestoresStock(t *testing.T) {
	ledger, store := newLedger(5)

	require.NoError(t, ledger.Commit(context.Background(), "var-1", 5))
	require.NoError(t, ledger.Release(context.Background(), "var-1", 5))
	assert.Equal(t, 5, store.StockOf("var-1"))
}

// The sweep removes expired bookkeeping rows only. The permanent decrement
// happened at order creation, so stock counters stay untouched.
func TestSweepExpired_DoesNotRestoreStock(t *testing.T) {
	store := memstore.New()
	store.PutVariant(product.Variant{ID: "var-1", StockQuantity: 10, Active: true, ProductActive: true})

	past := func() time.Time { return testClock().Add(-2 * time.Hour) }
	old := inventory.NewLedger(memstore.InventoryOps{S: store}, past)
	_, err := old.Reserve(context.Background(), "var-1", "cust-1", 3, time.Hour)
	require.NoError(t, err)
	require.NoError(t, old.Commit(context.Background(), "var-1", 3))

	current := inventory.NewLedger(memstore.InventoryOps{S: store}, testClock)
	_, err = current.Reserve(context.Background(), "var-1", "cust-2", 2, time.Hour)
	require.NoError(t, err)

	swept, err := current.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)
	assert.Equal(t, 1, store.ReservationCount())
	assert.Equal(t, 7, store.StockOf("var-1"))
}
