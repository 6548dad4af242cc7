package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification is the message handed to the Notifier after a transition
// commits. Delivery is at-most-once and never affects the transition outcome.
type Notification struct {
	OrderID     string
	OrderNumber string
	OldStatus   Status
	NewStatus   Status
	CustomerRef string
}

// Notifier delivers transition notifications to downstream channels (customer
// email, admin alerts). Implementations live in internal/notify.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// TokenIssuer creates a pickup token for an order if one does not already
// exist. Implemented by the pickup service; invoked when a pickup order
// reaches WAITING_PICKUP.
type TokenIssuer interface {
	Issue(ctx context.Context, o *Order) error
}

// EngineConfig bundles the collaborators of the transition engine. Notifier
// and Tokens are optional; Clock defaults to time.Now.
type EngineConfig struct {
	Store         Store
	Notifier      Notifier
	Tokens        TokenIssuer
	Clock         func() time.Time
	Logger        *zap.Logger
	NotifyTimeout time.Duration
}

// Engine is the single authority for applying order status transitions. All
// status mutation goes through Apply; no other component writes the status
// column.
type Engine struct {
	store         Store
	notifier      Notifier
	tokens        TokenIssuer
	clock         func() time.Time
	lg            *zap.Logger
	notifyTimeout time.Duration
}

// NewEngine constructs a transition engine.
func NewEngine(cfg EngineConfig) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		tokens:        cfg.Tokens,
		clock:         clock,
		lg:            lg,
		notifyTimeout: timeout,
	}
}

// Apply validates the requested transition against the transition table and,
// on success, persists the new status together with its side effects in one
// transaction:
//
//   - the status swap is conditioned on the status read at validation time;
//     losing that race yields ErrConcurrentModification,
//   - a STATUS_CHANGED event recording {from, to, actor} is appended,
//   - PAID stamps paid_at,
//   - DONE stamps completed_at and clears the order's reservations,
//   - CANCELLED restores each line's stock and clears the order's
//     reservations.
//
// After commit, a notification is dispatched with a bounded timeout and, for
// pickup orders reaching WAITING_PICKUP, a pickup token is issued. Failures in
// either are logged and never surfaced: the transition has already committed.
func (e *Engine) Apply(ctx context.Context, orderID string, target Status, actor string) (*Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}

	from := o.Status
	if !CanTransition(from, target, o.Fulfillment) {
		return nil, &TransitionError{
			OrderID: o.ID,
			From:    from,
			To:      target,
			Method:  o.Fulfillment,
			Allowed: AvailableTransitions(from, o.Fulfillment),
		}
	}

	now := e.clock().UTC()
	var paidAt, completedAt *time.Time
	switch target {
	case StatusPaid:
		paidAt = &now
	case StatusDone:
		completedAt = &now
	}

	err = e.store.InTx(ctx, func(tx Tx) error {
		ok, err := tx.UpdateOrderStatus(ctx, o.ID, from, target, paidAt, completedAt)
		if err != nil {
			return errors.Wrap(err, "update status")
		}
		if !ok {
			return ErrConcurrentModification
		}

		ev := &Event{
			ID:      uuid.New().String(),
			OrderID: o.ID,
			Type:    EventStatusChanged,
			Meta: map[string]string{
				"from":  string(from),
				"to":    string(target),
				"actor": actor,
			},
			CreatedAt: now,
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return errors.Wrap(err, "append event")
		}

		switch target {
		case StatusCancelled:
			// Full restoration: symmetric to the decrements applied at
			// checkout. Re-cancelling is impossible (the graph check rejects
			// it before this code runs), so restoration never double-applies.
			for _, li := range o.Lines {
				if err := tx.RestoreStock(ctx, li.VariantID, li.Quantity); err != nil {
					return errors.Wrapf(err, "restore stock for variant %s", li.VariantID)
				}
			}
			if err := tx.DeleteReservations(ctx, o.CustomerRef, o.VariantIDs()); err != nil {
				return errors.Wrap(err, "delete reservations")
			}
		case StatusDone:
			// The permanent decrement happened at checkout; only the
			// advisory hold is cleared, so the units stop counting against
			// available stock twice.
			if err := tx.DeleteReservations(ctx, o.CustomerRef, o.VariantIDs()); err != nil {
				return errors.Wrap(err, "delete reservations")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.Status = target
	if paidAt != nil {
		o.PaidAt = paidAt
	}
	if completedAt != nil {
		o.CompletedAt = completedAt
	}

	e.afterCommit(ctx, o, from, target)

	return o, nil
}

// afterCommit runs the side effects that are deliberately decoupled from the
// transition transaction.
func (e *Engine) afterCommit(ctx context.Context, o *Order, from, to Status) {
	if e.tokens != nil && to == StatusWaitingPickup {
		if err := e.tokens.Issue(ctx, o); err != nil {
			e.lg.Error("pickup token issue failed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	if e.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()

	n := Notification{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		OldStatus:   from,
		NewStatus:   to,
		CustomerRef: o.CustomerRef,
	}
	if err := e.notifier.Notify(notifyCtx, n); err != nil {
		e.lg.Error("notification dispatch failed",
			zap.String("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}
