package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tokoku/commerce/internal/domain/product"
)

type variantResponse struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	WeightKg      string `json:"weight_kg"`
	StockQuantity int    `json:"stock_quantity"`
	Sellable      bool   `json:"sellable"`
}

func toVariantResponse(v product.Variant) variantResponse {
	return variantResponse{
		ID:            v.ID,
		ProductID:     v.ProductID,
		SKU:           v.SKU,
		Name:          v.Name,
		Price:         v.Price.StringFixed(2),
		WeightKg:      v.WeightKg.String(),
		StockQuantity: v.StockQuantity,
		Sellable:      v.Sellable(),
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	variants, err := h.variants.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]variantResponse, len(variants))
	for i, v := range variants {
		out[i] = toVariantResponse(v)
	}
	h.writeJSON(w, http.StatusOK, out)
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// postRestock is the administrative stock correction endpoint. It is the only
// caller of the ledger's release path outside of order cancellation.
func (h *Handler) postRestock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Quantity <= 0 {
		h.writeError(w, http.StatusUnprocessableEntity, "quantity must be positive")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.variants.GetByID(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.ledger.Release(r.Context(), id, req.Quantity); err != nil {
		h.writeDomainError(w, err)
		return
	}

	v, err := h.variants.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toVariantResponse(*v))
}
