// Package memstore provides an in-memory implementation of the domain store
// interfaces for unit tests. Transactions are simulated by snapshotting state
// and restoring it when the transaction function fails, which gives tests
// real all-or-nothing semantics without a database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/tokoku/commerce/internal/domain/checkout"
	"github.com/tokoku/commerce/internal/domain/inventory"
	"github.com/tokoku/commerce/internal/domain/order"
	"github.com/tokoku/commerce/internal/domain/pickup"
	"github.com/tokoku/commerce/internal/domain/product"
)

// Store holds all domain state in maps. Safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	orders       map[string]*order.Order
	events       []order.Event
	variants     map[string]*product.Variant
	reservations map[string]*inventory.Reservation
	tokens       map[string]*pickup.Token // keyed by code
	addresses    map[string]checkout.Address
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		orders:       make(map[string]*order.Order),
		variants:     make(map[string]*product.Variant),
		reservations: make(map[string]*inventory.Reservation),
		tokens:       make(map[string]*pickup.Token),
		addresses:    make(map[string]checkout.Address),
	}
}

// --- seeding and inspection helpers ---

// PutVariant seeds a catalog variant.
func (s *Store) PutVariant(v product.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.variants[v.ID] = &cp
}

// PutAddress seeds a resolvable address for a customer.
func (s *Store) PutAddress(customerRef string, a checkout.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[customerRef+"/"+a.ID] = a
}

// PutOrder seeds an order directly, bypassing checkout.
func (s *Store) PutOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
}

// StockOf returns the current on-hand counter of a variant.
func (s *Store) StockOf(variantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.variants[variantID]; ok {
		return v.StockQuantity
	}
	return 0
}

// EventsFor returns the events of one order in insertion order.
func (s *Store) EventsFor(orderID string) []order.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Event
	for _, e := range s.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// ReservationCount returns how many reservation rows exist.
func (s *Store) ReservationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

// OrderCount returns how many orders exist.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// TokenForOrder returns the pickup token of an order, if any.
func (s *Store) TokenForOrder(orderID string) *pickup.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.OrderID == orderID {
			cp := *t
			return &cp
		}
	}
	return nil
}

// DeleteTokenForOrder drops an order's pickup token, if any.
func (s *Store) DeleteTokenForOrder(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, t := range s.tokens {
		if t.OrderID == orderID {
			delete(s.tokens, code)
			return
		}
	}
}

// --- order.Store ---

var _ order.Store = (*Store)(nil)

func (s *Store) GetOrder(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if err := o.CheckTotal(); err != nil {
		return nil, err
	}
	return cloneOrder(o), nil
}

func (s *Store) GetOrderByPaymentRef(_ context.Context, ref string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PaymentRef == ref {
			if err := o.CheckTotal(); err != nil {
				return nil, err
			}
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *Store) AppendEvent(_ context.Context, e *order.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *Store) SetPaymentRef(_ context.Context, orderID, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentRef = paymentRef
	return nil
}

// InTx snapshots state, runs fn against a transaction view, and restores the
// snapshot if fn returns an error.
func (s *Store) InTx(_ context.Context, fn func(tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	if err := fn(&tx{s: s}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

// CheckoutStore adapts the Store to checkout.Store. Needed because Go cannot
// overload InTx across two function signatures on one type.
type CheckoutStore struct{ S *Store }

var _ checkout.Store = CheckoutStore{}

// InTx mirrors Store.InTx for checkout transactions.
func (c CheckoutStore) InTx(_ context.Context, fn func(tx checkout.Tx) error) error {
	c.S.mu.Lock()
	defer c.S.mu.Unlock()
	snap := c.S.snapshotLocked()
	if err := fn(&tx{s: c.S}); err != nil {
		c.S.restoreLocked(snap)
		return err
	}
	return nil
}

// tx exposes the transactional writes. The store lock is already held.
type tx struct{ s *Store }

var (
	_ order.Tx    = (*tx)(nil)
	_ checkout.Tx = (*tx)(nil)
)

func (t *tx) UpdateOrderStatus(_ context.Context, orderID string, from, to order.Status, paidAt, completedAt *time.Time) (bool, error) {
	o, ok := t.s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if paidAt != nil {
		o.PaidAt = paidAt
	}
	if completedAt != nil {
		o.CompletedAt = completedAt
	}
	return true, nil
}

func (t *tx) AppendEvent(_ context.Context, e *order.Event) error {
	t.s.events = append(t.s.events, *e)
	return nil
}

func (t *tx) RestoreStock(_ context.Context, variantID string, qty int) error {
	if v, ok := t.s.variants[variantID]; ok {
		v.StockQuantity += qty
	}
	return nil
}

func (t *tx) DeleteReservations(_ context.Context, customerRef string, variantIDs []string) error {
	wanted := make(map[string]struct{}, len(variantIDs))
	for _, id := range variantIDs {
		wanted[id] = struct{}{}
	}
	for id, r := range t.s.reservations {
		if r.CustomerRef != customerRef {
			continue
		}
		if _, ok := wanted[r.VariantID]; ok {
			delete(t.s.reservations, id)
		}
	}
	return nil
}

func (t *tx) CreateOrder(_ context.Context, o *order.Order) error {
	t.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *tx) Reserve(_ context.Context, r *inventory.Reservation) (bool, error) {
	return t.s.reserveLocked(r)
}

func (t *tx) CommitStock(_ context.Context, variantID string, qty int) (bool, error) {
	return t.s.commitStockLocked(variantID, qty)
}

// --- inventory.Ops ---

var _ inventory.Ops = (*InventoryOps)(nil)

// InventoryOps adapts the Store to inventory.Ops with its own locking, for
// use outside transactions (ledger, sweeper).
type InventoryOps struct{ S *Store }

func (i InventoryOps) Reserve(_ context.Context, r *inventory.Reservation) (bool, error) {
	i.S.mu.Lock()
	defer i.S.mu.Unlock()
	return i.S.reserveLocked(r)
}

func (i InventoryOps) CommitStock(_ context.Context, variantID string, qty int) (bool, error) {
	i.S.mu.Lock()
	defer i.S.mu.Unlock()
	return i.S.commitStockLocked(variantID, qty)
}

func (i InventoryOps) RestoreStock(_ context.Context, variantID string, qty int) error {
	i.S.mu.Lock()
	defer i.S.mu.Unlock()
	if v, ok := i.S.variants[variantID]; ok {
		v.StockQuantity += qty
	}
	return nil
}

func (i InventoryOps) DeleteExpiredReservations(_ context.Context, cutoff time.Time) (int64, error) {
	i.S.mu.Lock()
	defer i.S.mu.Unlock()
	var n int64
	for id, r := range i.S.reservations {
		if !r.ExpiresAt.After(cutoff) {
			delete(i.S.reservations, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) reserveLocked(r *inventory.Reservation) (bool, error) {
	v, ok := s.variants[r.VariantID]
	if !ok {
		return false, nil
	}
	reserved := 0
	for _, existing := range s.reservations {
		if existing.VariantID == r.VariantID && existing.ExpiresAt.After(r.CreatedAt) {
			reserved += existing.Quantity
		}
	}
	if v.StockQuantity-reserved < r.Quantity {
		return false, nil
	}
	cp := *r
	s.reservations[r.ID] = &cp
	return true, nil
}

func (s *Store) commitStockLocked(variantID string, qty int) (bool, error) {
	v, ok := s.variants[variantID]
	if !ok || v.StockQuantity < qty {
		return false, nil
	}
	v.StockQuantity -= qty
	return true, nil
}

// --- pickup.Store ---

var _ pickup.Store = (*Store)(nil)

func (s *Store) CreateToken(_ context.Context, t *pickup.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tokens {
		if existing.OrderID == t.OrderID {
			return false, nil
		}
	}
	cp := *t
	s.tokens[t.Code] = &cp
	return true, nil
}

func (s *Store) GetTokenByCode(_ context.Context, code string) (*pickup.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[code]
	if !ok {
		return nil, pickup.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) GetTokenByOrder(_ context.Context, orderID string) (*pickup.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.OrderID == orderID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, pickup.ErrTokenNotFound
}

func (s *Store) RedeemToken(_ context.Context, code, verifiedBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[code]
	if !ok || t.Status != pickup.TokenActive || !at.Before(t.ExpiresAt) {
		return false, nil
	}
	t.Status = pickup.TokenUsed
	t.VerifiedBy = verifiedBy
	t.VerifiedAt = &at
	return true, nil
}

// --- product.Repository ---

var _ product.Repository = (*Catalog)(nil)

// Catalog adapts the Store to product.Repository.
type Catalog struct{ S *Store }

func (c Catalog) List(_ context.Context) ([]product.Variant, error) {
	c.S.mu.Lock()
	defer c.S.mu.Unlock()
	out := make([]product.Variant, 0, len(c.S.variants))
	for _, v := range c.S.variants {
		out = append(out, *v)
	}
	return out, nil
}

func (c Catalog) GetByID(_ context.Context, id string) (*product.Variant, error) {
	c.S.mu.Lock()
	defer c.S.mu.Unlock()
	v, ok := c.S.variants[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (c Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Variant, error) {
	c.S.mu.Lock()
	defer c.S.mu.Unlock()
	var out []product.Variant
	for _, id := range ids {
		if v, ok := c.S.variants[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

// --- checkout.AddressResolver ---

var _ checkout.AddressResolver = (*Addresses)(nil)

// Addresses adapts the Store to checkout.AddressResolver.
type Addresses struct{ S *Store }

func (a Addresses) Resolve(_ context.Context, customerRef, addressRef string) (*checkout.Address, error) {
	a.S.mu.Lock()
	defer a.S.mu.Unlock()
	addr, ok := a.S.addresses[customerRef+"/"+addressRef]
	if !ok {
		return nil, checkout.ErrInvalidAddress
	}
	cp := addr
	return &cp, nil
}

// --- snapshot / restore ---

type snapshot struct {
	orders       map[string]*order.Order
	events       []order.Event
	variants     map[string]*product.Variant
	reservations map[string]*inventory.Reservation
	tokens       map[string]*pickup.Token
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		orders:       make(map[string]*order.Order, len(s.orders)),
		events:       append([]order.Event(nil), s.events...),
		variants:     make(map[string]*product.Variant, len(s.variants)),
		reservations: make(map[string]*inventory.Reservation, len(s.reservations)),
		tokens:       make(map[string]*pickup.Token, len(s.tokens)),
	}
	for id, o := range s.orders {
		snap.orders[id] = cloneOrder(o)
	}
	for id, v := range s.variants {
		cp := *v
		snap.variants[id] = &cp
	}
	for id, r := range s.reservations {
		cp := *r
		snap.reservations[id] = &cp
	}
	for code, t := range s.tokens {
		cp := *t
		snap.tokens[code] = &cp
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.orders = snap.orders
	s.events = snap.events
	s.variants = snap.variants
	s.reservations = snap.reservations
	s.tokens = snap.tokens
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = append([]order.LineItem(nil), o.Lines...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
