// Package payment integrates the external payment gateway. The core only
// depends on the Provider interface; protocol details stay behind it.
package payment

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrIntentNotFound is returned when the gateway does not know the intent id.
var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is the provider-agnostic view of a payment intent.
type Intent struct {
	ID             string
	ClientSecret   string
	Status         string
	AmountReceived int64
}

// Provider is the gateway collaborator. Amounts are minor units (cents).
type Provider interface {
	// CreateIntent registers a payment intent for the given amount and
	// currency. Metadata is attached verbatim for later correlation.
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*Intent, error)
	// ConfirmIntent confirms a previously created intent with the given
	// payment method.
	ConfirmIntent(ctx context.Context, id, paymentMethod string) (*Intent, error)
}
