package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository поверх общего Store.
type orderRepository struct {
	store *Store
}

// Create сохраняет новый заказ, если ID и номер ещё не заняты.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, exists := s.orderByNumber[order.OrderNumber]; exists {
		return domain.ErrOrderNumberTaken
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	s.orders[order.ID] = cloneOrder(order)
	s.orderByNumber[order.OrderNumber] = order.ID
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByNumber возвращает заказ по человекочитаемому номеру.
func (r *orderRepository) GetByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.orderByNumber[orderNumber]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

// ListByUser возвращает заказы покупателя, свежие первыми.
func (r *orderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.UserID != userID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// ListExpiredPending возвращает заказы pending/pending, созданные до before.
func (r *orderRepository) ListExpiredPending(_ context.Context, before time.Time, limit int) ([]domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatePending {
			continue
		}
		if !order.CreatedAt.Before(before) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
// Позиции заказа неизменяемы и сохраняются из текущего состояния.
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	order.Version++
	order.Items = current.Items
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
