package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartRepository — in-memory реализация CartRepository.
type cartRepository struct {
	store *Store
}

func (r *cartRepository) Create(_ context.Context, cart domain.Cart) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.carts[cart.ID]; exists {
		return domain.ErrCartItemAlreadyExists
	}
	s.carts[cart.ID] = cart
	s.cartByUser[cart.UserID] = cart.ID
	s.cartItems[cart.ID] = make(map[string]domain.CartItem)
	return nil
}

func (r *cartRepository) Get(_ context.Context, id string) (domain.Cart, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart, nil
}

func (r *cartRepository) GetByUser(_ context.Context, userID string) (domain.Cart, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.cartByUser[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return s.carts[id], nil
}

func (r *cartRepository) ListItems(_ context.Context, cartID string) ([]domain.CartItem, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, ok := s.cartItems[cartID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}

	result := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ProductID < result[j].ProductID
	})
	return result, nil
}

func (r *cartRepository) AddItem(_ context.Context, item domain.CartItem) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.cartItems[item.CartID]
	if !ok {
		return domain.ErrCartNotFound
	}
	if _, exists := items[item.ProductID]; exists {
		return domain.ErrCartItemAlreadyExists
	}
	items[item.ProductID] = item
	return nil
}

func (r *cartRepository) RemoveItem(_ context.Context, cartID, productID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.cartItems[cartID]
	if !ok {
		return domain.ErrCartNotFound
	}
	delete(items, productID)
	return nil
}

func (r *cartRepository) RemoveItemsByProduct(_ context.Context, cartID string, productIDs []string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.cartItems[cartID]
	if !ok {
		return domain.ErrCartNotFound
	}
	for _, pid := range productIDs {
		delete(items, pid)
	}
	return nil
}

func (r *cartRepository) SaveTotals(_ context.Context, cart domain.Cart) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cart.ID]; !ok {
		return domain.ErrCartNotFound
	}
	s.carts[cart.ID] = cart
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
