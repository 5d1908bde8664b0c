package reaper

import (
	"context"
	"errors"
	"strings"
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
		nil,
	)
	return store
}

func seedOrder(t *testing.T, store *memory.Store, id string, status domain.OrderStatus, payState domain.PaymentState, createdAt time.Time) {
	t.Helper()

	order := domain.Order{
		ID:               id,
		UserID:           "u1",
		OrderNumber:      "ORD-" + id,
		Status:           status,
		TotalAmountMinor: 2000,
		ShippingAddress:  []byte(`{}`),
		PaymentMethod:    "bank_transfer",
		PaymentStatus:    payState,
		Items: []domain.OrderItem{
			{ID: "item-" + id, ProductID: "p1", ProductName: "Espresso Beans", ProductSKU: "SKU-1", Qty: 1, PriceMinor: 1000, TotalPriceMinor: 1000, CreatedAt: createdAt},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	order.RecalcGrandTotal()
	if err := store.Repos().Orders.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order %s: %v", id, err)
	}
}

func TestRunOnce_CancelsOnlyStalePendingOrders(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	worker := NewWorker(store,
		WithMaxAge(time.Hour),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	seedOrder(t, store, "stale", domain.OrderStatusPending, domain.PaymentStatePending, now.Add(-2*time.Hour))
	seedOrder(t, store, "fresh", domain.OrderStatusPending, domain.PaymentStatePending, now.Add(-10*time.Minute))
	seedOrder(t, store, "paid", domain.OrderStatusProcessing, domain.PaymentStatePaid, now.Add(-3*time.Hour))
	seedOrder(t, store, "stale-paid", domain.OrderStatusPending, domain.PaymentStatePaid, now.Add(-3*time.Hour))

	expired, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired order, got %d", expired)
	}

	stale, _ := store.Repos().Orders.Get(ctx, "stale")
	if stale.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected stale order cancelled, got %s", stale.Status)
	}
	if stale.PaymentStatus != domain.PaymentStateFailed {
		t.Fatalf("expected failed payment state, got %s", stale.PaymentStatus)
	}
	if !strings.Contains(stale.Notes, "payment timeout") {
		t.Fatalf("expected timeout note, got %q", stale.Notes)
	}

	for _, id := range []string{"fresh", "paid", "stale-paid"} {
		order, _ := store.Repos().Orders.Get(ctx, id)
		if order.Status == domain.OrderStatusCancelled {
			t.Fatalf("order %s must not be touched", id)
		}
	}
}

func TestRunOnce_NeverRestoresStock(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	worker := NewWorker(store, WithMaxAge(time.Hour))
	ctx := context.Background()

	seedOrder(t, store, "stale", domain.OrderStatusPending, domain.PaymentStatePending, now.Add(-2*time.Hour))

	if _, err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// Pending-заказ остаток не списывал; reaper не должен его "возвращать".
	product, _ := store.Repos().Products.Get(ctx, "p1")
	if product.Stock != 10 {
		t.Fatalf("expected stock untouched, got %d", product.Stock)
	}
}

func TestRunOnce_Idempotent(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	worker := NewWorker(store, WithMaxAge(time.Hour))
	ctx := context.Background()

	seedOrder(t, store, "stale", domain.OrderStatusPending, domain.PaymentStatePending, now.Add(-2*time.Hour))

	if _, err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	expired, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if expired != 0 {
		t.Fatalf("second sweep must find nothing, got %d", expired)
	}
}

func TestRunOnce_RespectsBatchSize(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	worker := NewWorker(store, WithMaxAge(time.Hour), WithBatchSize(2))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		seedOrder(t, store, id, domain.OrderStatusPending, domain.PaymentStatePending, now.Add(-2*time.Hour))
	}

	expired, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected batch of 2, got %d", expired)
	}

	expired, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected remaining 1, got %d", expired)
	}
}

func TestRunOnce_SingleFlight(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, WithMaxAge(time.Hour))

	worker.sweepMu.Lock()
	defer worker.sweepMu.Unlock()

	_, err := worker.RunOnce(context.Background())
	if !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestNewWorker_ClampsInvalidOptions(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, WithInterval(-1), WithMaxAge(0), WithBatchSize(-5))

	if worker.interval != defaultSweepInterval {
		t.Fatalf("expected default interval, got %v", worker.interval)
	}
	if worker.maxAge != defaultMaxAge {
		t.Fatalf("expected default max age, got %v", worker.maxAge)
	}
	if worker.batchSize != defaultBatchSize {
		t.Fatalf("expected default batch size, got %d", worker.batchSize)
	}
}
