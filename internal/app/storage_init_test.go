package app

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestInitStorage_Memory(t *testing.T) {
	t.Parallel()

	bundle, err := initStorage(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initStorage(memory) failed: %v", err)
	}
	defer bundle.close()

	if bundle.store == nil {
		t.Fatal("store should not be nil for memory storage")
	}

	// Демо-каталог должен быть засеян.
	product, err := bundle.store.Repos().Products.Get(context.Background(), "prod-espresso")
	if err != nil {
		t.Fatalf("expected seeded product: %v", err)
	}
	if product.Stock <= 0 || !product.IsActive {
		t.Fatalf("unexpected seeded product %+v", product)
	}

	profile, err := bundle.store.Repos().Profiles.Get(context.Background(), "demo-user")
	if err != nil {
		t.Fatalf("expected seeded profile: %v", err)
	}
	if profile.Email == "" {
		t.Fatal("expected seeded profile email")
	}
}

func TestInitStorage_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initStorage(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitStorage_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initStorage(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestWebhookOverrideStore_SubstitutesWebhookRepo(t *testing.T) {
	t.Parallel()

	bundle, err := initStorage(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "webhook-override"))
	if err != nil {
		t.Fatalf("initStorage failed: %v", err)
	}
	defer bundle.close()

	override := &stubWebhookRepo{}
	store := withWebhookOverride(bundle.store, override)

	record := domain.WebhookRecord{TransactionID: "tx-1"}
	if err := store.Repos().Webhooks.Claim(context.Background(), record); err != nil {
		t.Fatalf("claim via override failed: %v", err)
	}

	err = store.WithinTx(context.Background(), func(ctx context.Context, r domain.Repos) error {
		return r.Webhooks.Claim(ctx, domain.WebhookRecord{TransactionID: "tx-2"})
	})
	if err != nil {
		t.Fatalf("claim within tx failed: %v", err)
	}

	if override.claims != 2 {
		t.Fatalf("expected 2 claims through override, got %d", override.claims)
	}
}

type stubWebhookRepo struct {
	claims int
}

func (s *stubWebhookRepo) Claim(context.Context, domain.WebhookRecord) error {
	s.claims++
	return nil
}

func (s *stubWebhookRepo) Get(context.Context, string) (domain.WebhookRecord, error) {
	return domain.WebhookRecord{}, errors.New("not implemented")
}

func (s *stubWebhookRepo) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

var _ domain.WebhookRepository = (*stubWebhookRepo)(nil)
