package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineRepository — in-memory журнал событий жизненного цикла заказов.
type timelineRepository struct {
	store *Store
}

func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeline[event.OrderID] = append(s.timeline[event.OrderID], event)
	return nil
}

func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.TimelineEvent(nil), s.timeline[orderID]...), nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
