package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/tokoku/commerce/internal/domain/checkout"
	"github.com/tokoku/commerce/internal/domain/order"
	"github.com/tokoku/commerce/internal/domain/pickup"
)

type checkoutRequest struct {
	Items       []checkout.Item `json:"items"`
	AddressRef  string          `json:"address_ref,omitempty"`
	Fulfillment string          `json:"fulfillment"`
}

type lineItemResponse struct {
	ID        string `json:"id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type orderResponse struct {
	ID                   string             `json:"id"`
	Number               string             `json:"order_number"`
	Status               string             `json:"status"`
	Fulfillment          string             `json:"fulfillment"`
	Subtotal             string             `json:"subtotal"`
	ShippingCost         string             `json:"shipping_cost"`
	Total                string             `json:"total"`
	CustomerRef          string             `json:"customer_ref"`
	AddressRef           string             `json:"address_ref,omitempty"`
	Lines                []lineItemResponse `json:"lines"`
	CreatedAt            time.Time          `json:"created_at"`
	PaidAt               *time.Time         `json:"paid_at,omitempty"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
	AvailableTransitions []string           `json:"available_transitions"`
	PickupCode           string             `json:"pickup_code,omitempty"`
	PickupCodeExpiresAt  *time.Time         `json:"pickup_code_expires_at,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	lines := make([]lineItemResponse, len(o.Lines))
	for i, li := range o.Lines {
		lines[i] = lineItemResponse{
			ID:        li.ID,
			VariantID: li.VariantID,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice.StringFixed(2),
		}
	}
	next := order.AvailableTransitions(o.Status, o.Fulfillment)
	transitions := make([]string, len(next))
	for i, st := range next {
		transitions[i] = string(st)
	}
	return orderResponse{
		ID:                   o.ID,
		Number:               o.Number,
		Status:               string(o.Status),
		Fulfillment:          string(o.Fulfillment),
		Subtotal:             o.Subtotal.StringFixed(2),
		ShippingCost:         o.ShippingCost.StringFixed(2),
		Total:                o.Total.StringFixed(2),
		CustomerRef:          o.CustomerRef,
		AddressRef:           o.AddressRef,
		Lines:                lines,
		CreatedAt:            o.CreatedAt,
		PaidAt:               o.PaidAt,
		CompletedAt:          o.CompletedAt,
		AvailableTransitions: transitions,
	}
}

func (h *Handler) postCheckout(w http.ResponseWriter, r *http.Request) {
	cust := customerRef(r)
	if cust == "" {
		h.writeError(w, http.StatusBadRequest, "missing X-Customer-Ref header")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	method, ok := order.ParseFulfillmentMethod(req.Fulfillment)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown fulfillment method")
		return
	}

	o, err := h.checkout.CreateOrder(r.Context(), cust, req.Items, req.AddressRef, method)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := toOrderResponse(o)
	h.attachPickupCode(r, o, &resp)
	h.writeJSON(w, http.StatusOK, resp)
}

// attachPickupCode adds the order's pickup code to the response, but only for
// the customer the order belongs to and only while the code is still usable.
func (h *Handler) attachPickupCode(r *http.Request, o *order.Order, resp *orderResponse) {
	if o.Fulfillment != order.FulfillmentPickup || customerRef(r) != o.CustomerRef {
		return
	}
	t, err := h.pickup.TokenFor(r.Context(), o)
	if err != nil {
		if !errors.Is(err, pickup.ErrTokenNotFound) {
			h.lg.Warn("loading pickup token", zap.String("order_id", o.ID), zap.Error(err))
		}
		return
	}
	if t.Status != pickup.TokenActive {
		return
	}
	resp.PickupCode = t.Code
	exp := t.ExpiresAt
	resp.PickupCodeExpiresAt = &exp
}

type statusRequest struct {
	Target string `json:"target"`
	Actor  string `json:"actor"`
}

func (h *Handler) postOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	target, ok := order.ParseStatus(req.Target)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "staff"
	}

	o, err := h.engine.Apply(r.Context(), chi.URLParam(r, "id"), target, actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}
