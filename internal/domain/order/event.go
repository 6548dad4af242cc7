package order

import "time"

// EventType enumerates the kinds of entries in the append-only order event
// log.
type EventType string

const (
	EventCreated              EventType = "CREATED"
	EventStatusChanged        EventType = "STATUS_CHANGED"
	EventPaymentConfirmed     EventType = "PAYMENT_CONFIRMED"
	EventPaymentFailed        EventType = "PAYMENT_FAILED"
	EventCancelled            EventType = "CANCELLED"
	EventPickupTokenGenerated EventType = "PICKUP_TOKEN_GENERATED"
	EventPickupVerified       EventType = "PICKUP_VERIFIED"
)

// Event is one entry of an order's audit trail. Events are append-only: they
// are never updated or deleted.
type Event struct {
	ID        string
	OrderID   string
	Type      EventType
	Meta      map[string]string
	CreatedAt time.Time
}
