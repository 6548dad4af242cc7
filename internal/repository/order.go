package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/tokoku/commerce/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, order_number, status, fulfillment, subtotal, shipping_cost, total,
			customer_ref, address_ref, payment_ref, created_at, paid_at, completed_at
		FROM orders WHERE id = $1`

	getOrderByPaymentRefSQL = `SELECT id, order_number, status, fulfillment, subtotal, shipping_cost, total,
			customer_ref, address_ref, payment_ref, created_at, paid_at, completed_at
		FROM orders WHERE payment_ref = $1`

	getOrderLinesSQL = `SELECT id, order_id, variant_id, quantity, unit_price
		FROM order_line_items WHERE order_id = $1 ORDER BY id`

	createOrderSQL = `INSERT INTO orders (id, order_number, status, fulfillment, subtotal, shipping_cost, total,
			customer_ref, address_ref, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	createOrderLineSQL = `INSERT INTO order_line_items (id, order_id, variant_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)`

	// The WHERE clause carries the optimistic concurrency check: zero rows
	// updated means another writer moved the order first.
	updateOrderStatusSQL = `UPDATE orders
		SET status = $3,
			paid_at = COALESCE($4, paid_at),
			completed_at = COALESCE($5, completed_at)
		WHERE id = $1 AND status = $2`

	setPaymentRefSQL = `UPDATE orders SET payment_ref = $2 WHERE id = $1`

	appendEventSQL = `INSERT INTO order_events (id, order_id, event_type, meta, created_at)
		VALUES ($1, $2, $3, $4, $5)`
)

// GetOrder loads an order with its line items.
func (s *Store) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, s.db, getOrderSQL, id)
}

// GetOrderByPaymentRef looks an order up by its payment-intent identifier.
func (s *Store) GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*order.Order, error) {
	return getOrder(ctx, s.db, getOrderByPaymentRefSQL, paymentRef)
}

// SetPaymentRef attaches a payment-intent id to an order after creation.
func (s *Store) SetPaymentRef(ctx context.Context, orderID, paymentRef string) error {
	tag, err := s.db.Exec(ctx, setPaymentRefSQL, orderID, paymentRef)
	if err != nil {
		return fmt.Errorf("setting payment ref on order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// AppendEvent records an order event outside of any engine transaction.
func (s *Store) AppendEvent(ctx context.Context, e *order.Event) error {
	return appendEvent(ctx, s.db, e)
}

// UpdateOrderStatus performs the conditional status swap. It returns false
// without error when the order no longer holds the expected from status.
func (t *storeTx) UpdateOrderStatus(ctx context.Context, orderID string, from, to order.Status, paidAt, completedAt *time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, updateOrderStatusSQL, orderID, string(from), string(to), paidAt, completedAt)
	if err != nil {
		return false, fmt.Errorf("updating status of order %q: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// AppendEvent records an order event within the transaction.
func (t *storeTx) AppendEvent(ctx context.Context, e *order.Event) error {
	return appendEvent(ctx, t.q, e)
}

// CreateOrder inserts the order row together with its line items.
func (t *storeTx) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.q.Exec(ctx, createOrderSQL,
		o.ID, o.Number, string(o.Status), string(o.Fulfillment),
		o.Subtotal, o.ShippingCost, o.Total,
		o.CustomerRef, nullable(o.AddressRef), nullable(o.PaymentRef), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	for _, li := range o.Lines {
		_, err := t.q.Exec(ctx, createOrderLineSQL, li.ID, o.ID, li.VariantID, li.Quantity, li.UnitPrice)
		if err != nil {
			return fmt.Errorf("creating line item for order %q: %w", o.ID, err)
		}
	}
	return nil
}

func appendEvent(ctx context.Context, q querier, e *order.Event) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("marshaling event meta: %w", err)
	}
	_, err = q.Exec(ctx, appendEventSQL, e.ID, e.OrderID, string(e.Type), meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending event for order %q: %w", e.OrderID, err)
	}
	return nil
}

func getOrder(ctx context.Context, q querier, query, arg string) (*order.Order, error) {
	rows, err := q.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	lineRows, err := q.Query(ctx, getOrderLinesSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", o.ID, err)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %q: %w", o.ID, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                      order.Order
		status, fulfillment    string
		addressRef, paymentRef *string
	)
	err := row.Scan(
		&o.ID, &o.Number, &status, &fulfillment,
		&o.Subtotal, &o.ShippingCost, &o.Total,
		&o.CustomerRef, &addressRef, &paymentRef,
		&o.CreatedAt, &o.PaidAt, &o.CompletedAt,
	)
	if err != nil {
		return o, err
	}
	var ok bool
	if o.Status, ok = order.ParseStatus(status); !ok {
		return o, fmt.Errorf("order %q has unknown status %q", o.ID, status)
	}
	if o.Fulfillment, ok = order.ParseFulfillmentMethod(fulfillment); !ok {
		return o, fmt.Errorf("order %q has unknown fulfillment method %q", o.ID, fulfillment)
	}
	if err := o.CheckTotal(); err != nil {
		return o, fmt.Errorf("order %q: %w", o.ID, err)
	}
	if addressRef != nil {
		o.AddressRef = *addressRef
	}
	if paymentRef != nil {
		o.PaymentRef = *paymentRef
	}
	return o, nil
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var li order.LineItem
	err := row.Scan(&li.ID, &li.OrderID, &li.VariantID, &li.Quantity, &li.UnitPrice)
	return li, err
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
