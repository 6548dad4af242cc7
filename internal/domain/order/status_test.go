package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusPending, StatusPaid, StatusProcessed, StatusWaitingPickup,
	StatusPickedUp, StatusOnDelivery, StatusDone, StatusCancelled,
}

// TestAvailableTransitions_Exhaustive pins the full transition graph for both
// fulfillment methods. Any change to the table must update this snapshot.
func TestAvailableTransitions_Exhaustive(t *testing.T) {
	expected := map[FulfillmentMethod]map[Status][]Status{
		FulfillmentPickup: {
			StatusPending:       {StatusPaid, StatusCancelled},
			StatusPaid:          {StatusProcessed, StatusCancelled},
			StatusProcessed:     {StatusWaitingPickup, StatusCancelled},
			StatusWaitingPickup: {StatusPickedUp, StatusCancelled},
			StatusPickedUp:      {StatusDone},
			StatusOnDelivery:    {},
			StatusDone:          {},
			StatusCancelled:     {},
		},
		FulfillmentDelivery: {
			StatusPending:       {StatusPaid, StatusCancelled},
			StatusPaid:          {StatusProcessed, StatusCancelled},
			StatusProcessed:     {StatusOnDelivery, StatusCancelled},
			StatusOnDelivery:    {StatusDone, StatusCancelled},
			StatusWaitingPickup: {},
			StatusPickedUp:      {},
			StatusDone:          {},
			StatusCancelled:     {},
		},
	}

	for method, byStatus := range expected {
		for from, want := range byStatus {
			got := AvailableTransitions(from, method)
			assert.ElementsMatch(t, want, got, "from=%s method=%s", from, method)
		}
	}
}

func TestAvailableTransitions_TerminalStatesHaveNoEdges(t *testing.T) {
	for _, method := range []FulfillmentMethod{FulfillmentPickup, FulfillmentDelivery} {
		assert.Empty(t, AvailableTransitions(StatusDone, method))
		assert.Empty(t, AvailableTransitions(StatusCancelled, method))
	}
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
}

// Cross-path exclusivity: the pickup-only statuses are unreachable on the
// delivery branch and vice versa, from every possible current status.
func TestCanTransition_FulfillmentPathExclusivity(t *testing.T) {
	for _, from := range allStatuses {
		assert.False(t, CanTransition(from, StatusWaitingPickup, FulfillmentDelivery),
			"delivery order must never reach WAITING_PICKUP (from %s)", from)
		assert.False(t, CanTransition(from, StatusPickedUp, FulfillmentDelivery),
			"delivery order must never reach PICKED_UP (from %s)", from)
		assert.False(t, CanTransition(from, StatusOnDelivery, FulfillmentPickup),
			"pickup order must never reach ON_DELIVERY (from %s)", from)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range allStatuses {
		got, ok := ParseStatus(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseStatus("SHIPPED")
	assert.False(t, ok)
	_, ok = ParseStatus("")
	assert.False(t, ok)
}

func TestParseFulfillmentMethod(t *testing.T) {
	for _, m := range []FulfillmentMethod{FulfillmentPickup, FulfillmentDelivery} {
		got, ok := ParseFulfillmentMethod(string(m))
		assert.True(t, ok)
		assert.Equal(t, m, got)
	}
	_, ok := ParseFulfillmentMethod("COURIER")
	assert.False(t, ok)
}
