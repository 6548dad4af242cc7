package checkout

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tokoku/commerce/internal/domain/inventory"
	"github.com/tokoku/commerce/internal/domain/order"
	"github.com/tokoku/commerce/internal/domain/product"
)

// Item is one requested cart line.
type Item struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Address is the resolved delivery destination. Only the fields the core
// needs are modeled; the address book itself is owned elsewhere.
type Address struct {
	ID       string
	Postcode string
}

// AddressResolver resolves a customer's address reference. Implementations
// return ErrInvalidAddress when the reference does not resolve.
type AddressResolver interface {
	Resolve(ctx context.Context, customerRef, addressRef string) (*Address, error)
}

// ShippingCalculator computes the delivery fee for a destination and total
// parcel weight. Stateless from the orchestrator's point of view.
type ShippingCalculator interface {
	Cost(ctx context.Context, postcode string, weightKg decimal.Decimal) (decimal.Decimal, error)
}

// CartClearer empties a customer's cart after a successful checkout. The cart
// lives outside the relational store, so clearing happens post-commit and a
// failure there is logged, never surfaced.
type CartClearer interface {
	Clear(ctx context.Context, customerRef string) error
}

// Store runs the checkout transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes available inside a checkout transaction.
type Tx interface {
	// CreateOrder inserts the order together with its line items.
	CreateOrder(ctx context.Context, o *order.Order) error
	// AppendEvent records the CREATED event.
	AppendEvent(ctx context.Context, e *order.Event) error
	// Reserve inserts an advisory reservation, conditioned atomically on
	// available stock. Returns false when availability was insufficient.
	Reserve(ctx context.Context, r *inventory.Reservation) (bool, error)
	// CommitStock permanently decrements on-hand stock, conditioned on the
	// counter staying non-negative. Returns false when it would go negative.
	CommitStock(ctx context.Context, variantID string, qty int) (bool, error)
}

// Config bundles the orchestrator's collaborators.
type Config struct {
	Store          Store
	Variants       product.Repository
	Addresses      AddressResolver
	Shipping       ShippingCalculator
	Carts          CartClearer
	Clock          func() time.Time
	ReservationTTL time.Duration
	Logger         *zap.Logger
}

// Service turns a cart snapshot, address, and fulfillment choice into a
// persisted PENDING order atomically.
type Service struct {
	store          Store
	variants       product.Repository
	addresses      AddressResolver
	shipping       ShippingCalculator
	carts          CartClearer
	clock          func() time.Time
	reservationTTL time.Duration
	lg             *zap.Logger
}

// NewService constructs a checkout Service.
func NewService(cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := cfg.ReservationTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		store:          cfg.Store,
		variants:       cfg.Variants,
		addresses:      cfg.Addresses,
		shipping:       cfg.Shipping,
		carts:          cfg.Carts,
		clock:          clock,
		reservationTTL: ttl,
		lg:             lg,
	}
}

// CreateOrder validates the cart, snapshots prices, computes the shipping fee
// for delivery orders, and persists the order, its line items, the inventory
// decrements, the reservations, and the CREATED event in one all-or-nothing
// transaction. It never creates a payment intent; the caller requests one
// afterwards using the returned order's total.
func (s *Service) CreateOrder(ctx context.Context, customerRef string, items []Item, addressRef string, method order.FulfillmentMethod) (*order.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{VariantID: it.VariantID}
		}
		ids[i] = it.VariantID
	}

	fetched, err := s.variants.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	byID := make(map[string]product.Variant, len(fetched))
	for _, v := range fetched {
		byID[v.ID] = v
	}
	for _, it := range items {
		v, ok := byID[it.VariantID]
		if !ok {
			return nil, &UnknownVariantError{VariantID: it.VariantID}
		}
		if !v.Sellable() {
			return nil, &InactiveProductError{VariantID: it.VariantID}
		}
	}

	now := s.clock().UTC()

	// Price snapshot and parcel weight.
	subtotal := decimal.Zero
	weight := decimal.Zero
	for _, it := range items {
		v := byID[it.VariantID]
		qty := decimal.NewFromInt(int64(it.Quantity))
		subtotal = subtotal.Add(v.Price.Mul(qty))
		weight = weight.Add(v.WeightKg.Mul(qty))
	}
	subtotal = subtotal.Round(2)

	shippingCost := decimal.Zero
	resolvedAddr := ""
	switch method {
	case order.FulfillmentPickup:
		// Pickup has no shipping leg and needs no address.
	case order.FulfillmentDelivery:
		if addressRef == "" {
			return nil, ErrInvalidAddress
		}
		addr, err := s.addresses.Resolve(ctx, customerRef, addressRef)
		if err != nil {
			return nil, err
		}
		resolvedAddr = addr.ID
		shippingCost, err = s.shipping.Cost(ctx, addr.Postcode, weight)
		if err != nil {
			return nil, errors.Wrap(err, "calculate shipping cost")
		}
		shippingCost = shippingCost.Round(2)
	default:
		return nil, errors.Errorf("unknown fulfillment method %q", method)
	}

	o := &order.Order{
		ID:           uuid.New().String(),
		Number:       newOrderNumber(now),
		Status:       order.StatusPending,
		Fulfillment:  method,
		Subtotal:     subtotal,
		ShippingCost: shippingCost,
		Total:        subtotal.Add(shippingCost),
		CustomerRef:  customerRef,
		AddressRef:   resolvedAddr,
		CreatedAt:    now,
	}
	o.Lines = make([]order.LineItem, len(items))
	for i, it := range items {
		o.Lines[i] = order.LineItem{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: byID[it.VariantID].Price,
		}
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		for _, li := range o.Lines {
			res := &inventory.Reservation{
				ID:          uuid.New().String(),
				VariantID:   li.VariantID,
				CustomerRef: customerRef,
				Quantity:    li.Quantity,
				ExpiresAt:   now.Add(s.reservationTTL),
				CreatedAt:   now,
			}
			ok, err := tx.Reserve(ctx, res)
			if err != nil {
				return errors.Wrapf(err, "reserve variant %s", li.VariantID)
			}
			if !ok {
				return &OutOfStockError{VariantID: li.VariantID}
			}
			ok, err = tx.CommitStock(ctx, li.VariantID, li.Quantity)
			if err != nil {
				return errors.Wrapf(err, "decrement variant %s", li.VariantID)
			}
			if !ok {
				return &OutOfStockError{VariantID: li.VariantID}
			}
		}
		ev := &order.Event{
			ID:      uuid.New().String(),
			OrderID: o.ID,
			Type:    order.EventCreated,
			Meta: map[string]string{
				"order_number": o.Number,
				"fulfillment":  string(method),
				"total":        o.Total.String(),
			},
			CreatedAt: now,
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	if s.carts != nil {
		if err := s.carts.Clear(ctx, customerRef); err != nil {
			s.lg.Error("cart clear failed after checkout",
				zap.String("customer_ref", customerRef),
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	return o, nil
}

// newOrderNumber builds a human-readable unique code like ORD-20240131-7A3F2K.
func newOrderNumber(now time.Time) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	suffix := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:])
	return "ORD-" + now.Format("20060102") + "-" + suffix[:6]
}
