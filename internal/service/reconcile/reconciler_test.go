package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestStore(t *testing.T) *memory.Store {
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
	return store
}

func seedPendingOrder(t *testing.T, store *memory.Store, orderNumber string) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	order := domain.Order{
		ID:               "ord-" + orderNumber,
		UserID:           "u1",
		OrderNumber:      orderNumber,
		Status:           domain.OrderStatusPending,
		TotalAmountMinor: 2000,
		TaxMinor:         200,
		ShippingFeeMinor: 100,
		ShippingAddress:  []byte(`{"city":"Jakarta"}`),
		PaymentMethod:    "bank_transfer",
		PaymentStatus:    domain.PaymentStatePending,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "p1", ProductName: "Espresso Beans", ProductSKU: "SKU-1", Qty: 2, PriceMinor: 1000, TotalPriceMinor: 2000, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.RecalcGrandTotal()
	if err := store.Repos().Orders.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func notification(orderNumber, txID, txStatus string) domain.GatewayNotification {
	return domain.GatewayNotification{
		OrderNumber:       orderNumber,
		TransactionStatus: txStatus,
		PaymentType:       "bank_transfer",
		TransactionID:     txID,
		Raw:               []byte(`{"transaction_status":"` + txStatus + `"}`),
	}
}

func TestHandleNotification_SettlementMarksPaid(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	order := seedPendingOrder(t, store, "ORD-1")

	if err := rc.HandleNotification(ctx, notification("ORD-1", "tx-1", "settlement")); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	got, _ := store.Repos().Orders.Get(ctx, order.ID)
	if got.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
	if got.PaymentStatus != domain.PaymentStatePaid {
		t.Fatalf("expected paid, got %s", got.PaymentStatus)
	}

	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock != 8 {
		t.Fatalf("expected stock 8 after settlement, got %d", product.Stock)
	}

	payment, err := store.Repos().Payments.GetByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", payment.Status)
	}
	if payment.TransactionID != "tx-1" {
		t.Fatalf("expected tx-1, got %s", payment.TransactionID)
	}
	if payment.PaymentDate == nil {
		t.Fatal("expected payment date")
	}

	pending, err := store.Repos().Outbox.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull outbox: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "order.paid" {
		t.Fatalf("expected single order.paid outbox event, got %+v", pending)
	}
}

func TestHandleNotification_DuplicateIsNoop(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	seedPendingOrder(t, store, "ORD-1")

	n := notification("ORD-1", "tx-1", "settlement")
	if err := rc.HandleNotification(ctx, n); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := rc.HandleNotification(ctx, n); err != nil {
		t.Fatalf("duplicate delivery must be swallowed, got %v", err)
	}

	// Повторная доставка не списывает остаток второй раз.
	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock != 8 {
		t.Fatalf("expected stock 8 after duplicate, got %d", product.Stock)
	}
}

func TestHandleNotification_ConcurrentDuplicates(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	seedPendingOrder(t, store, "ORD-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rc.HandleNotification(ctx, notification("ORD-1", "tx-1", "settlement"))
		}()
	}
	wg.Wait()

	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock != 8 {
		t.Fatalf("expected exactly one decrement, stock %d", product.Stock)
	}
}

func TestHandleNotification_PendingThenSettlementApplies(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	order := seedPendingOrder(t, store, "ORD-1")

	// Банковский перевод: шлюз сначала присылает pending, затем settlement
	// с тем же transaction_id. Pending не должен занимать идемпотентный слот.
	if err := rc.HandleNotification(ctx, notification("ORD-1", "tx-1", "pending")); err != nil {
		t.Fatalf("pending delivery: %v", err)
	}
	if err := rc.HandleNotification(ctx, notification("ORD-1", "tx-1", "settlement")); err != nil {
		t.Fatalf("settlement delivery: %v", err)
	}

	got, _ := store.Repos().Orders.Get(ctx, order.ID)
	if got.PaymentStatus != domain.PaymentStatePaid {
		t.Fatalf("settlement after pending must confirm payment, got %s", got.PaymentStatus)
	}
	if got.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock != 8 {
		t.Fatalf("expected stock 8, got %d", product.Stock)
	}
}

func TestHandleNotification_RedeliveryAfterOrderAppears(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()

	// Уведомление пришло раньше, чем заказ был создан fallback-потоком.
	n := notification("ORD-LATE", "tx-7", "settlement")
	if err := rc.HandleNotification(ctx, n); err != nil {
		t.Fatalf("early delivery must be acknowledged, got %v", err)
	}

	order := seedPendingOrder(t, store, "ORD-LATE")
	if err := rc.HandleNotification(ctx, n); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	got, _ := store.Repos().Orders.Get(ctx, order.ID)
	if got.PaymentStatus != domain.PaymentStatePaid {
		t.Fatalf("redelivery after order creation must apply, got %s", got.PaymentStatus)
	}
}

func TestHandleNotification_ConcurrentPaidOrdersNeverOversellBelowZero(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	seedPendingOrder(t, store, "ORD-A")
	seedPendingOrder(t, store, "ORD-B")

	// Остатка хватает только на один из двух заказов.
	if err := store.Repos().Products.DecrementStock(ctx, "p1", 7); err != nil {
		t.Fatalf("prepare stock: %v", err)
	}

	var wg sync.WaitGroup
	for _, n := range []domain.GatewayNotification{
		notification("ORD-A", "tx-a", "settlement"),
		notification("ORD-B", "tx-b", "settlement"),
	} {
		wg.Add(1)
		go func(n domain.GatewayNotification) {
			defer wg.Done()
			_ = rc.HandleNotification(ctx, n)
		}(n)
	}
	wg.Wait()

	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock < 0 {
		t.Fatalf("stock must never go below zero, got %d", product.Stock)
	}
	if product.Stock != 0 {
		t.Fatalf("expected clamped stock 0, got %d", product.Stock)
	}
}

func TestHandleNotification_UnknownOrderAcknowledged(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)

	if err := rc.HandleNotification(context.Background(), notification("ORD-GHOST", "tx-9", "settlement")); err != nil {
		t.Fatalf("unknown order must be acknowledged, got %v", err)
	}
}

func TestHandleNotification_DenyCancelsWithoutRestoring(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	order := seedPendingOrder(t, store, "ORD-1")

	if err := rc.HandleNotification(ctx, notification("ORD-1", "tx-2", "deny")); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	got, _ := store.Repos().Orders.Get(ctx, order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if got.PaymentStatus != domain.PaymentStateFailed {
		t.Fatalf("expected failed, got %s", got.PaymentStatus)
	}

	// Pending-заказ остаток не списывал, восстанавливать нечего.
	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock != 10 {
		t.Fatalf("expected stock untouched, got %d", product.Stock)
	}
}

func TestHandleNotification_LatePaidForCancelledOrderIgnored(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	order := seedPendingOrder(t, store, "ORD-1")

	if err := rc.HandleNotification(ctx, notification("ORD-1", "tx-3", "expire")); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if err := rc.HandleNotification(ctx, notification("ORD-1", "tx-4", "settlement")); err != nil {
		t.Fatalf("late settlement must be swallowed, got %v", err)
	}

	got, _ := store.Repos().Orders.Get(ctx, order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("terminal status must not be resurrected, got %s", got.Status)
	}
	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock != 10 {
		t.Fatalf("late paid must not decrement stock, got %d", product.Stock)
	}
}

func TestHandleNotification_ChallengeLeavesOrderPending(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	order := seedPendingOrder(t, store, "ORD-1")

	n := notification("ORD-1", "tx-5", "capture")
	n.FraudStatus = "challenge"
	if err := rc.HandleNotification(ctx, n); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	got, _ := store.Repos().Orders.Get(ctx, order.ID)
	if got.Status != domain.OrderStatusPending {
		t.Fatalf("challenge must not mutate order, got %s", got.Status)
	}
	if got.PaymentStatus != domain.PaymentStatePending {
		t.Fatalf("expected pending payment, got %s", got.PaymentStatus)
	}
}

func TestHandleNotification_PaidClearsPurchasedCartItems(t *testing.T) {
	store := newTestStore(t)
	rc := NewReconciler(store, nil, nil)
	ctx := context.Background()
	seedPendingOrder(t, store, "ORD-1")

	now := time.Now().UTC()
	repos := store.Repos()
	cart := domain.Cart{ID: "cart-1", UserID: "u1", LastUpdated: now}
	if err := repos.Carts.Create(ctx, cart); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	if err := repos.Carts.AddItem(ctx, domain.CartItem{ID: "ci-1", CartID: "cart-1", ProductID: "p1", Qty: 2, PriceMinor: 1000, TotalPriceMinor: 2000, CreatedAt: now}); err != nil {
		t.Fatalf("seed cart item: %v", err)
	}

	if err := rc.HandleNotification(ctx, notification("ORD-1", "tx-6", "settlement")); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	items, err := repos.Carts.ListItems(ctx, "cart-1")
	if err != nil {
		t.Fatalf("list cart items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected purchased items removed from cart, got %d", len(items))
	}
}

func TestMapGatewayStatus(t *testing.T) {
	tests := []struct {
		txStatus    string
		fraudStatus string
		want        domain.PaymentState
	}{
		{"settlement", "", domain.PaymentStatePaid},
		{"capture", "accept", domain.PaymentStatePaid},
		{"capture", "", domain.PaymentStatePaid},
		{"capture", "challenge", domain.PaymentStatePending},
		{"capture", "deny", domain.PaymentStateFailed},
		{"cancel", "", domain.PaymentStateFailed},
		{"deny", "", domain.PaymentStateFailed},
		{"expire", "", domain.PaymentStateFailed},
		{"failure", "", domain.PaymentStateFailed},
		{"pending", "", domain.PaymentStatePending},
		{"refund", "", domain.PaymentStatePending},
	}

	for _, tt := range tests {
		if got := MapGatewayStatus(tt.txStatus, tt.fraudStatus); got != tt.want {
			t.Errorf("MapGatewayStatus(%q, %q) = %s, want %s", tt.txStatus, tt.fraudStatus, got, tt.want)
		}
	}
}
