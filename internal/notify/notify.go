// Package notify delivers order transition notifications to downstream
// channels. Dispatch is at-most-once: the transition has already committed by
// the time a dispatcher runs, so failures are reported to the caller for
// logging and nothing else.
package notify

import (
	"github.com/tokoku/commerce/internal/domain/order"
)

// Message is the wire form of a transition notification.
type Message struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	CustomerRef string `json:"customer_ref"`
}

func fromNotification(n order.Notification) Message {
	return Message{
		OrderID:     n.OrderID,
		OrderNumber: n.OrderNumber,
		OldStatus:   string(n.OldStatus),
		NewStatus:   string(n.NewStatus),
		CustomerRef: n.CustomerRef,
	}
}
