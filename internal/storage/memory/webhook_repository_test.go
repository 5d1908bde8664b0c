package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestWebhookRepository_ClaimOnce(t *testing.T) {
	store := NewStore()
	repo := store.Repos().Webhooks
	ctx := context.Background()

	record := domain.WebhookRecord{
		TransactionID: "tx-1",
		OrderNumber:   "ORD-1",
		Result:        domain.PaymentStatePaid,
		Payload:       []byte(`{"transaction_status":"settlement"}`),
	}

	if err := repo.Claim(ctx, record); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := repo.Claim(ctx, record); !errors.Is(err, domain.ErrWebhookAlreadyProcessed) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	got, err := repo.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.OrderNumber != "ORD-1" || got.Result != domain.PaymentStatePaid {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.TTLAt.IsZero() {
		t.Fatal("expected TTL to be assigned")
	}
}

func TestWebhookRepository_ClaimRequiresTransactionID(t *testing.T) {
	store := NewStore()
	repo := store.Repos().Webhooks

	err := repo.Claim(context.Background(), domain.WebhookRecord{TransactionID: "   "})
	if !errors.Is(err, domain.ErrTransactionIDRequired) {
		t.Fatalf("expected transaction id error, got %v", err)
	}
}

func TestWebhookRepository_DeleteExpired(t *testing.T) {
	store := NewStore()
	repo := store.Repos().Webhooks
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Claim(ctx, domain.WebhookRecord{TransactionID: "tx-old", TTLAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Claim(ctx, domain.WebhookRecord{TransactionID: "tx-live", TTLAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, now, 0)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed record, got %d", removed)
	}

	if _, err := repo.Get(ctx, "tx-old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired record gone, got %v", err)
	}
	if _, err := repo.Get(ctx, "tx-live"); err != nil {
		t.Fatalf("live record must survive: %v", err)
	}
}
