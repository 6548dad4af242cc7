package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/tokoku/commerce/internal/domain/order"
)

var _ order.Notifier = (*LogDispatcher)(nil)

// LogDispatcher writes notifications to the log. Used when no broker is
// configured (local development, tests).
type LogDispatcher struct {
	lg *zap.Logger
}

// NewLogDispatcher creates a dispatcher logging through lg.
func NewLogDispatcher(lg *zap.Logger) *LogDispatcher {
	return &LogDispatcher{lg: lg}
}

// Notify logs the transition at info level.
func (d *LogDispatcher) Notify(_ context.Context, n order.Notification) error {
	d.lg.Info("order status notification",
		zap.String("order_id", n.OrderID),
		zap.String("order_number", n.OrderNumber),
		zap.String("old_status", string(n.OldStatus)),
		zap.String("new_status", string(n.NewStatus)),
		zap.String("customer_ref", n.CustomerRef),
	)
	return nil
}
