package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRepository — in-memory реализация transactional outbox.
type outboxRepository struct {
	store *Store
}

// Enqueue ставит сообщение в очередь публикации, присваивая ID при необходимости.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: time.Now().UTC(),
	}
	s.outboxSeq = append(s.outboxSeq, msg.ID)
	return msg, nil
}

// PullPending возвращает до limit pending-сообщений в порядке постановки.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0)
	for _, id := range s.outboxSeq {
		record, ok := s.outbox[id]
		if !ok || record.status != outboxStatusPending {
			continue
		}
		result = append(result, record.msg)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самой старой pending-записи.
func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.OutboxStats{}
	for _, id := range s.outboxSeq {
		record, ok := s.outbox[id]
		if !ok || record.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || record.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = record.createdAt
		}
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusFailed)
}

func (r *outboxRepository) markStatus(id, status string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.outbox[id]
	if !ok {
		return domain.ErrNotFound
	}
	record.status = status
	s.outbox[id] = record
	return nil
}

// AllPending возвращает все pending-сообщения; используется тестами.
func (r *outboxRepository) AllPending() []domain.OutboxMessage {
	msgs, _ := r.PullPending(context.Background(), 0)
	return msgs
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
