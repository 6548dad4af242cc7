package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// callTimeout caps every outbound Stripe call. Request handlers must not hang
// on a stalled gateway connection longer than this.
const callTimeout = 10 * time.Second

// intentAPI is the slice of the Stripe client the provider uses. Narrowed to
// an interface so tests can stub the gateway.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

var _ Provider = (*StripeProvider)(nil)

// StripeProvider implements Provider on top of the Stripe API.
type StripeProvider struct {
	intents intentAPI
}

// NewStripeProvider constructs a provider with the given secret key.
func NewStripeProvider(apiKey string) (*StripeProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	sc := client.New(apiKey, nil)
	return &StripeProvider{intents: sc.PaymentIntents}, nil
}

// newStripeProviderWithAPI is the test seam.
func newStripeProviderWithAPI(api intentAPI) *StripeProvider {
	return &StripeProvider{intents: api}
}

// CreateIntent registers a payment intent with automatic payment methods
// enabled, so the storefront can render whatever the account supports.
func (p *StripeProvider) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinorUnits),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	params.Context = ctx
	if len(metadata) > 0 {
		params.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			params.Metadata[k] = v
		}
	}

	pi, err := p.intents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return fromStripeIntent(pi), nil
}

// ConfirmIntent confirms the intent with the given payment method id.
func (p *StripeProvider) ConfirmIntent(ctx context.Context, id, paymentMethod string) (*Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethod),
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	params.Context = ctx

	pi, err := p.intents.Confirm(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrIntentNotFound
		}
		return nil, errors.Wrap(err, "confirm payment intent")
	}
	return fromStripeIntent(pi), nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         string(pi.Status),
		AmountReceived: pi.AmountReceived,
	}
}
