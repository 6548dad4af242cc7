package handler

import (
	"encoding/json"
	"net/http"

	"github.com/tokoku/commerce/internal/domain/checkout"
)

type cartRequest struct {
	Items []checkout.Item `json:"items"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	cust := customerRef(r)
	if cust == "" {
		h.writeError(w, http.StatusBadRequest, "missing X-Customer-Ref header")
		return
	}
	c, err := h.carts.Get(r.Context(), cust)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *Handler) putCart(w http.ResponseWriter, r *http.Request) {
	cust := customerRef(r)
	if cust == "" {
		h.writeError(w, http.StatusBadRequest, "missing X-Customer-Ref header")
		return
	}
	var req cartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	c, err := h.carts.Put(r.Context(), cust, req.Items)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	cust := customerRef(r)
	if cust == "" {
		h.writeError(w, http.StatusBadRequest, "missing X-Customer-Ref header")
		return
	}
	if err := h.carts.Clear(r.Context(), cust); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
