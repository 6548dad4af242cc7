// Package cart stores per-customer shopping carts in Redis.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tokoku/commerce/internal/domain/checkout"
)

const keyCart = "cart:%s"

// DefaultTTL is how long an untouched cart survives before Redis expires it.
const DefaultTTL = 14 * 24 * time.Hour

// Cart is a customer's current selection.
type Cart struct {
	CustomerRef string          `json:"customer_ref"`
	Items       []checkout.Item `json:"items"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store keeps carts keyed by customer reference. Every write refreshes the
// cart's TTL.
type Store struct {
	rdb   *redis.Client
	ttl   time.Duration
	clock func() time.Time
}

var _ checkout.CartClearer = (*Store)(nil)

// NewStore wraps a Redis client. A non-positive ttl falls back to DefaultTTL.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, clock: time.Now}
}

// Get returns the customer's cart, or an empty one if none is stored.
func (s *Store) Get(ctx context.Context, customerRef string) (*Cart, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(keyCart, customerRef)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Cart{CustomerRef: customerRef}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return &c, nil
}

// Put replaces the customer's cart with the given items. Items with a
// non-positive quantity are rejected.
func (s *Store) Put(ctx context.Context, customerRef string, items []checkout.Item) (*Cart, error) {
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, errors.Errorf("quantity %d for variant %s must be positive", it.Quantity, it.VariantID)
		}
	}
	c := &Cart{
		CustomerRef: customerRef,
		Items:       items,
		UpdatedAt:   s.clock().UTC(),
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode cart")
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(keyCart, customerRef), raw, s.ttl).Err(); err != nil {
		return nil, errors.Wrap(err, "store cart")
	}
	return c, nil
}

// Clear drops the customer's cart. Clearing an absent cart is not an error.
func (s *Store) Clear(ctx context.Context, customerRef string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(keyCart, customerRef)).Err(); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}
