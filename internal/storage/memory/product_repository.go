package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepository — in-memory реализация ProductRepository.
type productRepository struct {
	store *Store
}

func (r *productRepository) Create(_ context.Context, product domain.Product) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[product.ID] = product
	return nil
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// DecrementStock уменьшает остаток, ограничивая его нулём.
// Повторный декремент для того же заказа не отличим от первого.
func (r *productRepository) DecrementStock(_ context.Context, productID string, qty int32) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	product.Stock -= int64(qty)
	if product.Stock < 0 {
		product.Stock = 0
	}
	s.products[productID] = product
	return nil
}

// RestoreStock безусловно увеличивает остаток.
func (r *productRepository) RestoreStock(_ context.Context, productID string, qty int32) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	product.Stock += int64(qty)
	s.products[productID] = product
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
