package memory

import (
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultWebhookTTL = 48 * time.Hour

// webhookRepository — in-memory таблица идемпотентности webhook-уведомлений.
type webhookRepository struct {
	store *Store
}

// Claim атомарно фиксирует уведомление по transaction_id.
func (r *webhookRepository) Claim(_ context.Context, record domain.WebhookRecord) error {
	record.TransactionID = strings.TrimSpace(record.TransactionID)
	if record.TransactionID == "" {
		return domain.ErrTransactionIDRequired
	}

	now := time.Now().UTC()
	if record.TTLAt.IsZero() {
		record.TTLAt = now.Add(defaultWebhookTTL)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.webhooks[record.TransactionID]; exists {
		return domain.ErrWebhookAlreadyProcessed
	}
	s.webhooks[record.TransactionID] = cloneWebhook(record)
	return nil
}

func (r *webhookRepository) Get(_ context.Context, transactionID string) (domain.WebhookRecord, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.webhooks[transactionID]
	if !ok {
		return domain.WebhookRecord{}, domain.ErrNotFound
	}
	return cloneWebhook(record), nil
}

func (r *webhookRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.webhooks {
		if record.TTLAt.After(before) {
			continue
		}
		delete(s.webhooks, key)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

var _ domain.WebhookRepository = (*webhookRepository)(nil)
