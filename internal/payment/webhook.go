package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/tokoku/commerce/internal/domain/order"
)

// ErrBadSignature is returned when the webhook signature does not verify.
var ErrBadSignature = errors.New("webhook signature verification failed")

// OrderLookup finds orders by their external payment reference and records
// payment audit events.
type OrderLookup interface {
	GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*order.Order, error)
	AppendEvent(ctx context.Context, e *order.Event) error
}

// TransitionApplier advances an order through the status transition engine.
type TransitionApplier interface {
	Apply(ctx context.Context, orderID string, target order.Status, actor string) (*order.Order, error)
}

// WebhookProcessor turns verified gateway webhook events into order
// transitions. Deduplication by gateway event id is the ingress caller's
// responsibility, not the processor's.
type WebhookProcessor struct {
	orders OrderLookup
	engine TransitionApplier
	secret string
	clock  func() time.Time
	lg     *zap.Logger
}

// NewWebhookProcessor constructs a processor verifying against the given
// endpoint secret.
func NewWebhookProcessor(orders OrderLookup, engine TransitionApplier, secret string, clock func() time.Time, lg *zap.Logger) *WebhookProcessor {
	if clock == nil {
		clock = time.Now
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &WebhookProcessor{
		orders: orders,
		engine: engine,
		secret: secret,
		clock:  clock,
		lg:     lg,
	}
}

// Process verifies the payload signature and applies the event:
//
//   - payment_intent.succeeded moves the order to PAID and records a
//     PAYMENT_CONFIRMED event,
//   - payment_intent.payment_failed records a PAYMENT_FAILED event and leaves
//     the status alone,
//   - every other event type is acknowledged and ignored.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, p.secret)
	if err != nil {
		return ErrBadSignature
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		p.lg.Debug("ignoring webhook event", zap.String("type", string(event.Type)))
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return errors.Wrap(err, "decode payment intent")
	}

	o, err := p.orders.GetOrderByPaymentRef(ctx, pi.ID)
	if err != nil {
		return errors.Wrapf(err, "lookup order for intent %s", pi.ID)
	}

	now := p.clock().UTC()
	switch event.Type {
	case "payment_intent.succeeded":
		if _, err := p.engine.Apply(ctx, o.ID, order.StatusPaid, "payment-webhook"); err != nil {
			return errors.Wrap(err, "apply PAID transition")
		}
		return p.orders.AppendEvent(ctx, &order.Event{
			ID:      uuid.New().String(),
			OrderID: o.ID,
			Type:    order.EventPaymentConfirmed,
			Meta: map[string]string{
				"payment_intent": pi.ID,
				"amount":         decimalMinor(pi.AmountReceived),
			},
			CreatedAt: now,
		})
	case "payment_intent.payment_failed":
		// A failed payment never changes the order status automatically;
		// the audit trail records it and the order stays where it is.
		return p.orders.AppendEvent(ctx, &order.Event{
			ID:      uuid.New().String(),
			OrderID: o.ID,
			Type:    order.EventPaymentFailed,
			Meta: map[string]string{
				"payment_intent": pi.ID,
			},
			CreatedAt: now,
		})
	}
	return nil
}

// decimalMinor renders a minor-unit amount as a major-unit decimal string.
func decimalMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
