package handler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/commerce/internal/cart"
	"github.com/tokoku/commerce/internal/domain/auth"
	"github.com/tokoku/commerce/internal/domain/checkout"
	"github.com/tokoku/commerce/internal/domain/inventory"
	"github.com/tokoku/commerce/internal/domain/order"
	"github.com/tokoku/commerce/internal/domain/pickup"
	"github.com/tokoku/commerce/internal/domain/product"
	"github.com/tokoku/commerce/internal/handler"
	"github.com/tokoku/commerce/internal/memstore"
	"github.com/tokoku/commerce/internal/payment"
	"github.com/tokoku/commerce/internal/shipping"
)

var testClock = func() time.Time {
	return time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
}

type memCarts struct {
	items map[string][]checkout.Item
}

func newMemCarts() *memCarts {
	return &memCarts{items: map[string][]checkout.Item{}}
}

func (c *memCarts) Get(_ context.Context, customerRef string) (*cart.Cart, error) {
	return &cart.Cart{CustomerRef: customerRef, Items: c.items[customerRef], UpdatedAt: testClock()}, nil
}

func (c *memCarts) Put(_ context.Context, customerRef string, items []checkout.Item) (*cart.Cart, error) {
	c.items[customerRef] = items
	return &cart.Cart{CustomerRef: customerRef, Items: items, UpdatedAt: testClock()}, nil
}

func (c *memCarts) Clear(_ context.Context, customerRef string) error {
	delete(c.items, customerRef)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, order.Notification) error { return nil }

type fixture struct {
	store  *memstore.Store
	carts  *memCarts
	router *chi.Mux
}

func newFixture(t *testing.T, security *handler.SecurityHandler) *fixture {
	t.Helper()
	return newFixtureWith(t, security, nil)
}

func newFixtureWith(t *testing.T, security *handler.SecurityHandler, payments payment.Provider) *fixture {
	t.Helper()

	ms := memstore.New()
	ms.PutVariant(product.Variant{
		ID: "var-a", ProductID: "prod-1", SKU: "SKU-A", Name: "Alpha",
		Price: decimal.RequireFromString("25.00"), WeightKg: decimal.RequireFromString("0.5"),
		StockQuantity: 10, Active: true, ProductActive: true,
	})
	ms.PutVariant(product.Variant{
		ID: "var-b", ProductID: "prod-1", SKU: "SKU-B", Name: "Beta",
		Price: decimal.RequireFromString("50.00"), WeightKg: decimal.RequireFromString("1.25"),
		StockQuantity: 2, Active: true, ProductActive: true,
	})
	ms.PutAddress("cust-1", checkout.Address{ID: "addr-1", Postcode: "10310"})

	pick := pickup.NewService(pickup.Config{Store: ms, Events: ms, Clock: testClock})
	engine := order.NewEngine(order.EngineConfig{
		Store: ms, Notifier: nopNotifier{}, Tokens: pick, Clock: testClock,
	})
	pick.SetEngine(engine)

	carts := newMemCarts()
	svc := checkout.NewService(checkout.Config{
		Store:     memstore.CheckoutStore{S: ms},
		Variants:  memstore.Catalog{S: ms},
		Addresses: memstore.Addresses{S: ms},
		Shipping:  shipping.DefaultTable(),
		Carts:     carts,
		Clock:     testClock,
	})
	ledger := inventory.NewLedger(memstore.InventoryOps{S: ms}, testClock)

	h := handler.NewHandler(handler.Config{
		Checkout: svc,
		Engine:   engine,
		Orders:   ms,
		Pickup:   pick,
		Carts:    carts,
		Variants: memstore.Catalog{S: ms},
		Ledger:   ledger,
		Payments: payments,
		Security: security,
	})
	r := chi.NewRouter()
	h.Register(r)

	return &fixture{store: ms, carts: carts, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Customer-Ref", "cust-1")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCheckoutDelivery(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 2}, {"variant_id": "var-b", "quantity": 1}},
		"address_ref": "addr-1",
		"fulfillment": "DELIVERY",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeOrder(t, rec)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "DELIVERY", body["fulfillment"])
	assert.Equal(t, "100.00", body["subtotal"])
	// 2.25kg to a metro postcode lands in the 5kg band.
	assert.Equal(t, "9.00", body["shipping_cost"])
	assert.Equal(t, "109.00", body["total"])
	assert.Contains(t, body["order_number"], "ORD-20240314-")
	assert.ElementsMatch(t, []any{"PAID", "CANCELLED"}, body["available_transitions"])
	assert.Equal(t, 8, f.store.StockOf("var-a"))
}

func TestCheckoutRequiresCustomerHeader(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 1}},
		"fulfillment": "PICKUP",
	}, map[string]string{"X-Customer-Ref": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutOutOfStockConflicts(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-b", "quantity": 3}},
		"fulfillment": "PICKUP",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 1}},
		"fulfillment": "PICKUP",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec)["id"].(string)

	rec = f.do(t, http.MethodGet, "/api/orders/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeOrder(t, rec)["id"])

	rec = f.do(t, http.MethodGet, "/api/orders/ord-missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderShowsPickupCodeToOwner(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 1}},
		"fulfillment": "PICKUP",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec)["id"].(string)

	// Before WAITING_PICKUP there is no code to show.
	rec = f.do(t, http.MethodGet, "/api/orders/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeOrder(t, rec), "pickup_code")

	for _, target := range []string{"PAID", "PROCESSED", "WAITING_PICKUP"} {
		rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"target": target}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	want := f.store.TokenForOrder(id)
	require.NotNil(t, want)

	rec = f.do(t, http.MethodGet, "/api/orders/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOrder(t, rec)
	assert.Equal(t, want.Code, body["pickup_code"])
	assert.NotEmpty(t, body["pickup_code_expires_at"])

	// Another customer sees the order without the code.
	rec = f.do(t, http.MethodGet, "/api/orders/"+id, nil,
		map[string]string{"X-Customer-Ref": "cust-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeOrder(t, rec), "pickup_code")
}

func TestGetOrderReissuesMissingPickupCode(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 1}},
		"fulfillment": "PICKUP",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec)["id"].(string)

	for _, target := range []string{"PAID", "PROCESSED", "WAITING_PICKUP"} {
		rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"target": target}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// Simulate a lost post-commit issue: the token vanishes.
	f.store.DeleteTokenForOrder(id)
	require.Nil(t, f.store.TokenForOrder(id))

	rec = f.do(t, http.MethodGet, "/api/orders/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOrder(t, rec)
	code, _ := body["pickup_code"].(string)
	assert.Len(t, code, 8)
	assert.Equal(t, code, f.store.TokenForOrder(id).Code)
}

func TestOrderStatusTransition(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 1}},
		"fulfillment": "PICKUP",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"target": "PAID", "actor": "ops"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeOrder(t, rec)
	assert.Equal(t, "PAID", body["status"])
	assert.NotNil(t, body["paid_at"])

	// PICKED_UP is not reachable from PAID.
	rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"target": "PICKED_UP"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"target": "NOT_A_STATUS"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPickupVerifyFlow(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 1}},
		"fulfillment": "PICKUP",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec)["id"].(string)

	for _, target := range []string{"PAID", "PROCESSED", "WAITING_PICKUP"} {
		rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"target": target}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	token := f.store.TokenForOrder(id)
	require.NotNil(t, token)

	rec = f.do(t, http.MethodPost, "/api/pickup/verify", map[string]any{"code": token.Code, "verified_by": "staff-7"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PICKED_UP", decodeOrder(t, rec)["status"])

	// Second scan of the same code conflicts.
	rec = f.do(t, http.MethodPost, "/api/pickup/verify", map[string]any{"code": token.Code}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/pickup/verify", map[string]any{"code": "NOPE1234"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPut, "/api/cart", map[string]any{
		"items": []map[string]any{{"variant_id": "var-a", "quantity": 2}},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/cart", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got cart.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "var-a", got.Items[0].VariantID)

	rec = f.do(t, http.MethodDelete, "/api/cart", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.carts.items["cust-1"])
}

func TestListProducts(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 2)
}

func TestAdminRestock(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/admin/variants/var-b/restock", map[string]any{"quantity": 5}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 7, f.store.StockOf("var-b"))

	rec = f.do(t, http.MethodPost, "/api/admin/variants/var-missing/restock", map[string]any{"quantity": 5}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/variants/var-b/restock", map[string]any{"quantity": 0}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type fakeProvider struct {
	lastAmount   int64
	lastMetadata map[string]string
}

func (p *fakeProvider) CreateIntent(_ context.Context, amount int64, _ string, metadata map[string]string) (*payment.Intent, error) {
	p.lastAmount = amount
	p.lastMetadata = metadata
	return &payment.Intent{ID: "pi_test_1", ClientSecret: "cs_test_1", Status: "requires_payment_method"}, nil
}

func (p *fakeProvider) ConfirmIntent(_ context.Context, id, _ string) (*payment.Intent, error) {
	return &payment.Intent{ID: id, Status: "succeeded"}, nil
}

func TestPaymentIntent(t *testing.T) {
	provider := &fakeProvider{}
	f := newFixtureWith(t, nil, provider)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":       []map[string]any{{"variant_id": "var-a", "quantity": 2}},
		"fulfillment": "PICKUP",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/payment-intent", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeOrder(t, rec)
	assert.Equal(t, "pi_test_1", body["intent_id"])
	assert.Equal(t, "50.00", body["amount"])
	assert.Equal(t, int64(5000), provider.lastAmount)
	assert.Equal(t, id, provider.lastMetadata["order_id"])

	got, err := f.store.GetOrderByPaymentRef(context.Background(), "pi_test_1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	// Another customer cannot request an intent for this order.
	rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/payment-intent", nil,
		map[string]string{"X-Customer-Ref": "cust-2"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Once the order leaves PENDING no further intents are allowed.
	rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"target": "PAID"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/orders/"+id+"/payment-intent", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type staticKeys struct {
	info *auth.APIKeyInfo
}

func (s staticKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if s.info != nil && s.info.KeyHash == hash {
		return s.info, nil
	}
	return nil, auth.ErrKeyNotFound
}

func TestAPIKeyScopes(t *testing.T) {
	pepper := []byte("pepper")
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte("secret-key"))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	sec := handler.NewSecurityHandler(staticKeys{info: &auth.APIKeyInfo{
		ID: "key-1", KeyHash: keyHash, Name: "ops", Scopes: []string{auth.ScopeOrdersWrite},
	}}, pepper)
	f := newFixture(t, sec)

	// No key at all.
	rec := f.do(t, http.MethodPost, "/api/orders/ord-1/status", map[string]any{"target": "PAID"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key.
	rec = f.do(t, http.MethodPost, "/api/orders/ord-1/status", map[string]any{"target": "PAID"},
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid key, scope covers status writes; order does not exist.
	rec = f.do(t, http.MethodPost, "/api/orders/ord-1/status", map[string]any{"target": "PAID"},
		map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Valid key, missing pickup scope.
	rec = f.do(t, http.MethodPost, "/api/pickup/verify", map[string]any{"code": "AAAA1111"},
		map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
