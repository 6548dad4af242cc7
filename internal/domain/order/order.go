package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Order is a customer order. Status is only ever mutated through the Engine;
// Total must equal Subtotal + ShippingCost at all times.
type Order struct {
	ID           string
	Number       string
	Status       Status
	Fulfillment  FulfillmentMethod
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
	CustomerRef  string
	AddressRef   string // required iff Fulfillment == FulfillmentDelivery
	PaymentRef   string // external payment-intent identifier, set after creation
	Lines        []LineItem
	CreatedAt    time.Time
	PaidAt       *time.Time
	CompletedAt  *time.Time
}

// LineItem is a single order line. UnitPrice is snapshotted at order-creation
// time and never tracks later variant price changes.
type LineItem struct {
	ID        string
	OrderID   string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CheckTotal verifies the pricing invariant Total == Subtotal + ShippingCost.
// Stores call it on every read so a corrupted row surfaces as an error
// instead of a wrong amount.
func (o *Order) CheckTotal() error {
	if want := o.Subtotal.Add(o.ShippingCost); !o.Total.Equal(want) {
		return errors.Errorf("total %s does not equal subtotal %s plus shipping %s",
			o.Total, o.Subtotal, o.ShippingCost)
	}
	return nil
}

// VariantIDs returns the distinct variant ids across the order's lines.
func (o *Order) VariantIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	ids := make([]string, 0, len(o.Lines))
	for _, li := range o.Lines {
		if _, ok := seen[li.VariantID]; ok {
			continue
		}
		seen[li.VariantID] = struct{}{}
		ids = append(ids, li.VariantID)
	}
	return ids
}

// Store provides read access to orders plus transactional mutation. The
// engine and checkout orchestrator are its only writers.
type Store interface {
	// GetOrder loads an order with its line items. Returns ErrNotFound when
	// no order exists for the id.
	GetOrder(ctx context.Context, id string) (*Order, error)
	// GetOrderByPaymentRef looks an order up by its external payment-intent
	// identifier. Returns ErrNotFound when no order matches.
	GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*Order, error)
	// AppendEvent records an order event outside of any engine transaction
	// (payment confirmations, pickup token audit entries).
	AppendEvent(ctx context.Context, e *Event) error
	// SetPaymentRef attaches a payment-intent id to an order after creation.
	SetPaymentRef(ctx context.Context, orderID, paymentRef string) error
	// InTx runs fn inside a single storage transaction. A non-nil error from
	// fn rolls every write back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes available inside an engine transaction. The
// postgres implementation binds all of them to one pgx transaction.
type Tx interface {
	// UpdateOrderStatus performs the optimistic status swap: the row is
	// updated only if it still holds the from status. Returns false (and no
	// error) when zero rows matched, i.e. a concurrent writer won.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to Status, paidAt, completedAt *time.Time) (bool, error)
	// AppendEvent records an order event within the transaction.
	AppendEvent(ctx context.Context, e *Event) error
	// RestoreStock adds qty back onto the variant's stock counter.
	RestoreStock(ctx context.Context, variantID string, qty int) error
	// DeleteReservations removes the advisory reservation rows for the given
	// customer and variants.
	DeleteReservations(ctx context.Context, customerRef string, variantIDs []string) error
}
