package pickup

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokoku/commerce/internal/domain/order"
)

// EventAppender records pickup audit entries in the order event log.
type EventAppender interface {
	AppendEvent(ctx context.Context, e *order.Event) error
}

// TransitionApplier advances an order through the status transition engine.
type TransitionApplier interface {
	Apply(ctx context.Context, orderID string, target order.Status, actor string) (*order.Order, error)
}

// Config bundles the pickup service collaborators.
type Config struct {
	Store    Store
	Events   EventAppender
	Engine   TransitionApplier
	Clock    func() time.Time
	TokenTTL time.Duration
	Logger   *zap.Logger
}

// Service issues and verifies pickup tokens. It implements order.TokenIssuer
// so the transition engine can issue a token when a pickup order reaches
// WAITING_PICKUP.
type Service struct {
	store  Store
	events EventAppender
	engine TransitionApplier
	clock  func() time.Time
	ttl    time.Duration
	lg     *zap.Logger
}

// NewService constructs a pickup Service.
func NewService(cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		store:  cfg.Store,
		events: cfg.Events,
		engine: cfg.Engine,
		clock:  clock,
		ttl:    ttl,
		lg:     lg,
	}
}

// SetEngine wires the transition engine after construction. The engine and
// the pickup service reference each other (the engine issues tokens, token
// verification drives a transition), so one side is attached late.
func (s *Service) SetEngine(engine TransitionApplier) {
	s.engine = engine
}

var _ order.TokenIssuer = (*Service)(nil)

// Issue creates the pickup token for the order if one does not already exist
// and records a PICKUP_TOKEN_GENERATED event. Issuing twice is a no-op.
func (s *Service) Issue(ctx context.Context, o *order.Order) error {
	if o.Fulfillment != order.FulfillmentPickup {
		return errors.Errorf("order %s is not a pickup order", o.ID)
	}
	now := s.clock().UTC()
	t := &Token{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		Code:      newCode(),
		Status:    TokenActive,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	created, err := s.store.CreateToken(ctx, t)
	if err != nil {
		return errors.Wrap(err, "create pickup token")
	}
	if !created {
		return nil
	}

	ev := &order.Event{
		ID:      uuid.New().String(),
		OrderID: o.ID,
		Type:    order.EventPickupTokenGenerated,
		Meta: map[string]string{
			"expires_at": t.ExpiresAt.Format(time.RFC3339),
		},
		CreatedAt: now,
	}
	if err := s.events.AppendEvent(ctx, ev); err != nil {
		return errors.Wrap(err, "append token event")
	}
	return nil
}

// TokenFor returns the order's pickup token. When the order is waiting for
// pickup and has no token (a crashed or failed post-commit issue), it issues
// one on the spot, so a customer reading their order always gets a code once
// the order reaches WAITING_PICKUP.
func (s *Service) TokenFor(ctx context.Context, o *order.Order) (*Token, error) {
	t, err := s.store.GetTokenByOrder(ctx, o.ID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return nil, err
	}
	if o.Fulfillment != order.FulfillmentPickup || o.Status != order.StatusWaitingPickup {
		return nil, ErrTokenNotFound
	}
	if err := s.Issue(ctx, o); err != nil {
		return nil, errors.Wrap(err, "reissue pickup token")
	}
	return s.store.GetTokenByOrder(ctx, o.ID)
}

// Verify redeems a presented pickup code: it validates the token, drives the
// WAITING_PICKUP -> PICKED_UP transition through the engine, then marks the
// token used and records a PICKUP_VERIFIED event. The transition's own
// optimistic check makes double verification impossible even under races; the
// bookkeeping after it is best-effort and logged on failure.
func (s *Service) Verify(ctx context.Context, code, verifiedBy string) (*order.Order, error) {
	t, err := s.store.GetTokenByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	switch {
	case t.Status == TokenUsed:
		return nil, ErrTokenUsed
	case t.Status == TokenExpired, !now.Before(t.ExpiresAt):
		return nil, ErrTokenExpired
	}

	o, err := s.engine.Apply(ctx, t.OrderID, order.StatusPickedUp, verifiedBy)
	if err != nil {
		return nil, err
	}

	redeemed, err := s.store.RedeemToken(ctx, code, verifiedBy, now)
	if err != nil || !redeemed {
		s.lg.Error("pickup token redeem bookkeeping failed",
			zap.String("order_id", t.OrderID),
			zap.Bool("redeemed", redeemed),
			zap.Error(err),
		)
	}

	ev := &order.Event{
		ID:      uuid.New().String(),
		OrderID: t.OrderID,
		Type:    order.EventPickupVerified,
		Meta: map[string]string{
			"verified_by": verifiedBy,
		},
		CreatedAt: now,
	}
	if err := s.events.AppendEvent(ctx, ev); err != nil {
		s.lg.Error("pickup verified event append failed",
			zap.String("order_id", t.OrderID),
			zap.Error(err),
		)
	}

	return o, nil
}
