// Package handler exposes the HTTP API over chi.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/tokoku/commerce/internal/cart"
	"github.com/tokoku/commerce/internal/domain/auth"
	"github.com/tokoku/commerce/internal/domain/checkout"
	"github.com/tokoku/commerce/internal/domain/inventory"
	"github.com/tokoku/commerce/internal/domain/order"
	"github.com/tokoku/commerce/internal/domain/pickup"
	"github.com/tokoku/commerce/internal/domain/product"
	"github.com/tokoku/commerce/internal/payment"
)

// CartStore is the cart surface the API exposes.
type CartStore interface {
	Get(ctx context.Context, customerRef string) (*cart.Cart, error)
	Put(ctx context.Context, customerRef string, items []checkout.Item) (*cart.Cart, error)
	Clear(ctx context.Context, customerRef string) error
}

// Handler wires the domain services into HTTP endpoints.
type Handler struct {
	checkout *checkout.Service
	engine   *order.Engine
	orders   order.Store
	pickup   *pickup.Service
	webhook  *payment.WebhookProcessor
	carts    CartStore
	variants product.Repository
	ledger   *inventory.Ledger
	payments payment.Provider
	security *SecurityHandler
	lg       *zap.Logger
}

// Config bundles the handler's dependencies.
type Config struct {
	Checkout *checkout.Service
	Engine   *order.Engine
	Orders   order.Store
	Pickup   *pickup.Service
	Webhook  *payment.WebhookProcessor
	Carts    CartStore
	Variants product.Repository
	Ledger   *inventory.Ledger
	Payments payment.Provider
	Security *SecurityHandler
	Logger   *zap.Logger
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config) *Handler {
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Handler{
		checkout: cfg.Checkout,
		engine:   cfg.Engine,
		orders:   cfg.Orders,
		pickup:   cfg.Pickup,
		webhook:  cfg.Webhook,
		carts:    cfg.Carts,
		variants: cfg.Variants,
		ledger:   cfg.Ledger,
		payments: cfg.Payments,
		security: cfg.Security,
		lg:       lg,
	}
}

// Register mounts every API route onto the router. Staff routes are guarded
// by API key scopes when a SecurityHandler is configured.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)

		r.Get("/cart", h.getCart)
		r.Put("/cart", h.putCart)
		r.Delete("/cart", h.clearCart)

		r.Post("/checkout", h.postCheckout)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/payment-intent", h.postPaymentIntent)

		r.Post("/webhooks/stripe", h.postStripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.security.Require(auth.ScopeOrdersWrite))
			r.Post("/orders/{id}/status", h.postOrderStatus)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.security.Require(auth.ScopePickupVerify))
			r.Post("/pickup/verify", h.postPickupVerify)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.security.Require(auth.ScopeInventoryWrite))
			r.Post("/admin/variants/{id}/restock", h.postRestock)
		})
	})
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.lg.Warn("encoding response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	h.writeJSON(w, code, errorResponse{Code: code, Message: message})
}

// writeDomainError maps domain errors onto HTTP statuses. Unrecognized errors
// become opaque 500s; their details go to the log, not the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		transitionErr *order.TransitionError
		quantityErr   *checkout.InvalidQuantityError
		unknownErr    *checkout.UnknownVariantError
		inactiveErr   *checkout.InactiveProductError
		stockErr      *checkout.OutOfStockError
		insuffErr     *inventory.InsufficientStockError
	)
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, pickup.ErrTokenNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidAddress):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &quantityErr),
		errors.As(err, &unknownErr),
		errors.As(err, &inactiveErr):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &stockErr),
		errors.As(err, &insuffErr),
		errors.As(err, &transitionErr),
		errors.Is(err, order.ErrConcurrentModification),
		errors.Is(err, pickup.ErrTokenUsed):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pickup.ErrTokenExpired):
		h.writeError(w, http.StatusGone, err.Error())
	default:
		h.lg.Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// customerRef identifies the caller. There is no customer auth layer here;
// upstream gateways inject the header.
func customerRef(r *http.Request) string {
	return r.Header.Get("X-Customer-Ref")
}
