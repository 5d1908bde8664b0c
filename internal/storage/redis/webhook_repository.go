// Package redis реализует дедупликацию webhook-уведомлений поверх Redis:
// SET NX c TTL заменяет таблицу webhook_records, просроченные ключи
// вычищает сам Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	keyWebhook = "webhook:tx:%s"

	defaultTTL = 48 * time.Hour
)

// New открывает подключение к Redis и проверяет его доступность.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// WebhookRepository хранит обработанные transaction_id в Redis.
type WebhookRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWebhookRepository создаёт Redis-реализацию WebhookRepository.
func NewWebhookRepository(client *redis.Client, ttl time.Duration) *WebhookRepository {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &WebhookRepository{client: client, ttl: ttl}
}

type webhookEntry struct {
	OrderNumber string          `json:"order_number"`
	Result      string          `json:"result"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Claim атомарно фиксирует уведомление через SET NX.
func (r *WebhookRepository) Claim(ctx context.Context, record domain.WebhookRecord) error {
	entry, err := json.Marshal(webhookEntry{
		OrderNumber: record.OrderNumber,
		Result:      string(record.Result),
		Payload:     json.RawMessage(record.Payload),
		CreatedAt:   record.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook entry: %w", err)
	}

	ttl := r.ttl
	if !record.TTLAt.IsZero() {
		if until := time.Until(record.TTLAt); until > 0 {
			ttl = until
		}
	}

	ok, err := r.client.SetNX(ctx, r.key(record.TransactionID), entry, ttl).Result()
	if err != nil {
		return fmt.Errorf("claim webhook: %w", err)
	}
	if !ok {
		return domain.ErrWebhookAlreadyProcessed
	}
	return nil
}

func (r *WebhookRepository) Get(ctx context.Context, transactionID string) (domain.WebhookRecord, error) {
	raw, err := r.client.Get(ctx, r.key(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.WebhookRecord{}, fmt.Errorf("%w: webhook record", domain.ErrNotFound)
	}
	if err != nil {
		return domain.WebhookRecord{}, fmt.Errorf("get webhook record: %w", err)
	}

	var entry webhookEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.WebhookRecord{}, fmt.Errorf("unmarshal webhook entry: %w", err)
	}

	return domain.WebhookRecord{
		TransactionID: transactionID,
		OrderNumber:   entry.OrderNumber,
		Result:        domain.PaymentState(entry.Result),
		Payload:       []byte(entry.Payload),
		CreatedAt:     entry.CreatedAt,
	}, nil
}

// DeleteExpired — no-op: просроченные ключи удаляет TTL самого Redis.
func (r *WebhookRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	return 0, nil
}

func (r *WebhookRepository) key(transactionID string) string {
	return fmt.Sprintf(keyWebhook, transactionID)
}

var _ domain.WebhookRepository = (*WebhookRepository)(nil)
