package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// storageBundle — инициализированное хранилище и его служебные ручки.
type storageBundle struct {
	store domain.UnitOfWork
	pg    *postgres.Store
	redis *goredis.Client
	close func()
}

// initStorage собирает хранилище по конфигурации: память либо PostgreSQL,
// с опциональной Redis-дедупликацией webhook-уведомлений поверх.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageBundle, error) {
	bundle := &storageBundle{}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		memStore := memory.NewStore()
		seedDemoData(memStore)
		bundle.store = memStore
		bundle.close = func() {}
		logger.Info("using in-memory storage")

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver selected but POSTGRES_DSN is empty")
		}
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		bundle.store = pg
		bundle.pg = pg
		bundle.close = func() {
			if err := pg.Close(); err != nil {
				logger.WithError(err).Warn("failed to close postgres")
			}
		}
		logger.Info("using postgres storage")

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			bundle.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		bundle.redis = client
		bundle.store = withWebhookOverride(bundle.store, redisstore.NewWebhookRepository(client, cfg.WebhookTTL))

		baseClose := bundle.close
		bundle.close = func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("failed to close redis client")
			}
			baseClose()
		}
		logger.WithField("addr", cfg.RedisAddr).Info("webhook deduplication moved to redis")
	}

	return bundle, nil
}

// webhookOverrideStore подменяет репозиторий webhook-записей, оставляя
// остальные репозитории на основном хранилище. Redis-дедупликация не
// откатывается при rollback транзакции: повторная доставка после сбоя
// отражается duplicate-ответом, а не повторным применением.
type webhookOverrideStore struct {
	base     domain.UnitOfWork
	webhooks domain.WebhookRepository
}

func withWebhookOverride(base domain.UnitOfWork, webhooks domain.WebhookRepository) domain.UnitOfWork {
	return &webhookOverrideStore{base: base, webhooks: webhooks}
}

func (s *webhookOverrideStore) Repos() domain.Repos {
	r := s.base.Repos()
	r.Webhooks = s.webhooks
	return r
}

func (s *webhookOverrideStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r domain.Repos) error) error {
	return s.base.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		r.Webhooks = s.webhooks
		return fn(ctx, r)
	})
}

// seedDemoData наполняет память стартовым каталогом для локального запуска.
func seedDemoData(store *memory.Store) {
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-espresso", Name: "Espresso Beans 1kg", SKU: "SKU-ESP-1", PriceMinor: 185000, Stock: 120, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-dripper", Name: "Ceramic Dripper V60", SKU: "SKU-DRP-1", PriceMinor: 95000, Stock: 40, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-grinder", Name: "Hand Grinder Steel", SKU: "SKU-GRN-1", PriceMinor: 420000, Stock: 15, IsActive: true, CreatedAt: now, UpdatedAt: now},
	}
	profiles := []domain.Profile{
		{UserID: "demo-user", Name: "Demo User", Email: "demo@example.test", Address: []byte(`{"street":"Jl. Demo 1","city":"Jakarta"}`)},
	}

	store.Seed(products, profiles)
}
