package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/tokoku/commerce/internal/payment"
)

type pickupVerifyRequest struct {
	Code       string `json:"code"`
	VerifiedBy string `json:"verified_by"`
}

func (h *Handler) postPickupVerify(w http.ResponseWriter, r *http.Request) {
	var req pickupVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "missing pickup code")
		return
	}
	verifiedBy := req.VerifiedBy
	if verifiedBy == "" {
		verifiedBy = "staff"
	}

	o, err := h.pickup.Verify(r.Context(), req.Code, verifiedBy)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) postStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhook == nil {
		h.writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "reading body")
		return
	}

	err = h.webhook.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
