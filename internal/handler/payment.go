package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tokoku/commerce/internal/domain/order"
)

var hundred = decimal.NewFromInt(100)

type paymentIntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       string `json:"amount"`
}

// postPaymentIntent creates a payment intent for a PENDING order and attaches
// its id as the order's payment reference. The confirmation itself arrives
// later over the webhook.
func (h *Handler) postPaymentIntent(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		h.writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if o.CustomerRef != customerRef(r) {
		h.writeError(w, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}
	if o.Status != order.StatusPending {
		h.writeError(w, http.StatusConflict, "order is not awaiting payment")
		return
	}

	minor := o.Total.Mul(hundred).IntPart()
	intent, err := h.payments.CreateIntent(r.Context(), minor, "usd", map[string]string{
		"order_id":     o.ID,
		"order_number": o.Number,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.orders.SetPaymentRef(r.Context(), o.ID, intent.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, paymentIntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       o.Total.StringFixed(2),
	})
}
