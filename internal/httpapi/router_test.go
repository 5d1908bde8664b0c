package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	cartsvc "github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/reaper"
	"github.com/vladislavdragonenkov/storefront/internal/service/reconcile"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestRouter(t *testing.T) (*chi.Mux, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	now := time.Now().UTC()
	store.Seed(
		[]domain.Product{
			{ID: "p1", Name: "Espresso Beans", SKU: "SKU-1", PriceMinor: 1000, Stock: 10, IsActive: true, CreatedAt: now, UpdatedAt: now},
		},
		[]domain.Profile{
			{UserID: "u1", Name: "Buyer One", Email: "u1@example.test", Address: []byte(`{"city":"Jakarta"}`)},
		},
	)

	orchestrator := checkout.NewOrchestrator(store, gateway.NewMockGateway(), notify.NewMockNotifier(), nil, nil)
	reconciler := reconcile.NewReconciler(store, nil, nil)
	cartService := cartsvc.NewService(store, nil)
	manager := lifecycle.NewManager(store, nil, nil)
	reaperWorker := reaper.NewWorker(store, reaper.WithMaxAge(time.Hour))

	router := NewRouter(RouterDeps{
		Orders:  NewOrderHandler(orchestrator, manager, cartService),
		Admin:   NewAdminHandler(manager, reaperWorker),
		Webhook: NewWebhookHandler(reconciler, nil),
		Health:  health.NewHandler("test"),
	})
	return router, store
}

func doJSON(t *testing.T, router http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func createOrderBody() map[string]any {
	return map[string]any{
		"shipping_address":   map[string]string{"city": "Jakarta"},
		"items":              []map[string]any{{"product_id": "p1", "qty": 2, "price_minor": 1000}},
		"total_amount_minor": 2000,
		"tax_minor":          200,
		"shipping_fee_minor": 100,
		"payment_method":     "bank_transfer",
	}
}

func TestCreateOrder_Created(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "u1", createOrderBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}

	data, _ := env.Data.(map[string]any)
	if data["order_number"] == "" {
		t.Fatalf("expected order number in response, got %v", env.Data)
	}
	if data["status"] != "pending" {
		t.Fatalf("expected pending status, got %v", data["status"])
	}
}

func TestCreateOrder_RequiresUserHeader(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "", createOrderBody())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateOrder_ValidationErrorIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	body := createOrderBody()
	body["items"] = []map[string]any{}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "u1", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Fatal("expected error envelope")
	}
}

func TestGetOrder_OwnershipEnforced(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "u1", createOrderBody())
	env := decodeEnvelope(t, rec)
	data, _ := env.Data.(map[string]any)
	orderID, _ := data["order_id"].(string)
	if orderID == "" {
		t.Fatalf("expected order id, got %v", env.Data)
	}

	if rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+orderID, "u1", nil); rec.Code != http.StatusOK {
		t.Fatalf("owner expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+orderID, "intruder", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("intruder expected 403, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/ghost", "u1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing order expected 404, got %d", rec.Code)
	}
}

func TestCancelOrder_Flow(t *testing.T) {
	router, store := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "u1", createOrderBody())
	env := decodeEnvelope(t, rec)
	data, _ := env.Data.(map[string]any)
	orderID, _ := data["order_id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", "u1", map[string]string{"reason": "later"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	order, err := store.Repos().Orders.Get(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}

	// Повторная отмена уже отменённого заказа — 400 по контракту API.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", "u1", map[string]string{"reason": "again"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhook_AlwaysRespondsOK(t *testing.T) {
	router, store := newTestRouter(t)

	// Валидное уведомление по несуществующему заказу.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/payments/webhook", "", map[string]string{
		"order_id":           "ORD-GHOST",
		"transaction_status": "settlement",
		"transaction_id":     "tx-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown order expected 200, got %d", rec.Code)
	}

	// Мусор вместо JSON тоже подтверждается, иначе шлюз ретраит вечно;
	// неуспех обработки виден только по флагу success.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString("not json at all"))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	if raw.Code != http.StatusOK {
		t.Fatalf("garbage body expected 200, got %d", raw.Code)
	}
	var garbageEnv envelope
	if err := json.Unmarshal(raw.Body.Bytes(), &garbageEnv); err != nil {
		t.Fatalf("decode garbage response: %v", err)
	}
	if garbageEnv.Success {
		t.Fatalf("garbage body must report success=false, got %s", raw.Body.String())
	}

	// Настоящий сценарий: уведомление по существующему заказу меняет статус.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/orders", "u1", createOrderBody())
	env := decodeEnvelope(t, rec)
	data, _ := env.Data.(map[string]any)
	orderNumber, _ := data["order_number"].(string)
	orderID, _ := data["order_id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/payments/webhook", "", map[string]string{
		"order_id":           orderNumber,
		"transaction_status": "settlement",
		"transaction_id":     "tx-2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("settlement expected 200, got %d", rec.Code)
	}
	if env = decodeEnvelope(t, rec); !env.Success {
		t.Fatalf("settlement must report success=true, got %s", rec.Body.String())
	}

	order, _ := store.Repos().Orders.Get(context.Background(), orderID)
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing after settlement, got %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatePaid {
		t.Fatalf("expected paid, got %s", order.PaymentStatus)
	}
}

func TestCart_AddAndRemove(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "u1", map[string]any{"product_id": "p1", "qty": 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/cart", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get cart expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	data, _ := env.Data.(map[string]any)
	if data["total_items"] != float64(2) {
		t.Fatalf("expected 2 total items, got %v", data["total_items"])
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/cart/items/p1", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove item expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/cart", "u1", nil)
	env = decodeEnvelope(t, rec)
	data, _ = env.Data.(map[string]any)
	if data["total_items"] != float64(0) {
		t.Fatalf("expected empty cart, got %v", data["total_items"])
	}
}

func TestAdmin_StatusAndTracking(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "u1", createOrderBody())
	env := decodeEnvelope(t, rec)
	data, _ := env.Data.(map[string]any)
	orderID, _ := data["order_id"].(string)

	// Назначение трека pending-заказу подтверждает его вручную.
	rec = doJSON(t, router, http.MethodPatch, "/api/v1/admin/orders/"+orderID+"/tracking", "", map[string]string{"tracking_number": "TRACK-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set tracking expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/v1/admin/orders/"+orderID+"/status", "", map[string]string{"status": "shipped"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Недопустимый переход — 400 по контракту API.
	rec = doJSON(t, router, http.MethodPatch, "/api/v1/admin/orders/"+orderID+"/status", "", map[string]string{"status": "processing"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("illegal transition expected 400, got %d", rec.Code)
	}
}

func TestAdmin_RunReaper(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/admin/reaper/run", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/healthz", "/health", "/readyz"} {
		rec := doJSON(t, router, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s expected 200, got %d", path, rec.Code)
		}
	}
}
