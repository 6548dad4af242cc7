package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an order cannot be located.
	ErrNotFound = errors.New("order not found")
	// ErrConcurrentModification is returned when the optimistic status check
	// lost a race with another writer. The caller should reload the order and
	// retry; the engine never retries on its own.
	ErrConcurrentModification = errors.New("order was modified concurrently")
)

// TransitionError indicates a requested status is not reachable from the
// order's current status under its fulfillment method. It carries the current
// status and the full legal-transition set so callers can report both.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
	Method  FulfillmentMethod
	Allowed []Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for %s order %s (allowed: %v)",
		e.From, e.To, e.Method, e.OrderID, e.Allowed)
}
