package order

// Status enumerates the order lifecycle states. Transitions between statuses
// are only legal when the transition table for the order's fulfillment method
// contains the edge; see AvailableTransitions.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPaid          Status = "PAID"
	StatusProcessed     Status = "PROCESSED"
	StatusWaitingPickup Status = "WAITING_PICKUP"
	StatusPickedUp      Status = "PICKED_UP"
	StatusOnDelivery    Status = "ON_DELIVERY"
	StatusDone          Status = "DONE"
	StatusCancelled     Status = "CANCELLED"
)

// FulfillmentMethod selects which branch of the transition table applies to an
// order. It is fixed at creation and never changes.
type FulfillmentMethod string

const (
	FulfillmentPickup   FulfillmentMethod = "PICKUP"
	FulfillmentDelivery FulfillmentMethod = "DELIVERY"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusProcessed, StatusWaitingPickup,
		StatusPickedUp, StatusOnDelivery, StatusDone, StatusCancelled:
		return st, true
	}
	return "", false
}

// ParseFulfillmentMethod validates a raw fulfillment method string.
func ParseFulfillmentMethod(s string) (FulfillmentMethod, bool) {
	switch m := FulfillmentMethod(s); m {
	case FulfillmentPickup, FulfillmentDelivery:
		return m, true
	}
	return "", false
}

// transitions is the single source of truth for legal status edges, keyed by
// fulfillment method. Statuses absent from a branch (or mapped to an empty
// slice) have no outgoing edges there: DONE and CANCELLED are terminal on both
// branches, WAITING_PICKUP/PICKED_UP exist only on the pickup branch and
// ON_DELIVERY only on the delivery branch.
var transitions = map[FulfillmentMethod]map[Status][]Status{
	FulfillmentPickup: {
		StatusPending:       {StatusPaid, StatusCancelled},
		StatusPaid:          {StatusProcessed, StatusCancelled},
		StatusProcessed:     {StatusWaitingPickup, StatusCancelled},
		StatusWaitingPickup: {StatusPickedUp, StatusCancelled},
		StatusPickedUp:      {StatusDone},
	},
	FulfillmentDelivery: {
		StatusPending:   {StatusPaid, StatusCancelled},
		StatusPaid:      {StatusProcessed, StatusCancelled},
		StatusProcessed: {StatusOnDelivery, StatusCancelled},
		StatusOnDelivery: {
			StatusDone, StatusCancelled,
		},
	},
}

// AvailableTransitions returns the set of statuses reachable from the given
// status under the given fulfillment method. The result is a copy; callers may
// mutate it. Terminal states and statuses foreign to the method's branch yield
// an empty set.
func AvailableTransitions(from Status, method FulfillmentMethod) []Status {
	next := transitions[method][from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether the edge from -> to exists for the method.
func CanTransition(from, to Status, method FulfillmentMethod) bool {
	for _, s := range transitions[method][from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing edges on either
// branch.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}
