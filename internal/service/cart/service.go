package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Recalculate пересчитывает агрегаты корзины по позициям, чьи товары всё ещё
// активны и есть на складе; устаревшие позиции лениво выбрасываются.
// Функция работает внутри уже открытой транзакции вызывающего.
func Recalculate(ctx context.Context, r domain.Repos, cartID string, now time.Time) error {
	items, err := r.Carts.ListItems(ctx, cartID)
	if err != nil {
		return fmt.Errorf("list cart items: %w", err)
	}

	cart, err := r.Carts.Get(ctx, cartID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	var stale []string
	var totalItems int32
	var totalPrice int64
	for _, item := range items {
		product, err := r.Products.Get(ctx, item.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			stale = append(stale, item.ProductID)
			continue
		}
		if err != nil {
			return fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if !product.Sellable() {
			stale = append(stale, item.ProductID)
			continue
		}
		totalItems += item.Qty
		totalPrice += item.TotalPriceMinor
	}

	if len(stale) > 0 {
		if err := r.Carts.RemoveItemsByProduct(ctx, cartID, stale); err != nil {
			return fmt.Errorf("prune stale cart items: %w", err)
		}
	}

	cart.TotalItems = totalItems
	cart.TotalPriceMinor = totalPrice
	cart.LastUpdated = now
	if err := r.Carts.SaveTotals(ctx, cart); err != nil {
		return fmt.Errorf("save cart totals: %w", err)
	}
	return nil
}

// Service — операции покупателя над корзиной. Каждая мутация завершается
// пересчётом агрегатов.
type Service struct {
	store  domain.UnitOfWork
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис корзины.
func NewService(store domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetByUser возвращает корзину покупателя вместе с позициями, создавая
// пустую корзину при первом обращении.
func (s *Service) GetByUser(ctx context.Context, userID string) (domain.Cart, []domain.CartItem, error) {
	if userID == "" {
		return domain.Cart{}, nil, domain.ErrUserRequired
	}

	var (
		cart  domain.Cart
		items []domain.CartItem
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		var err error
		cart, err = s.ensureCart(ctx, r, userID)
		if err != nil {
			return err
		}
		items, err = r.Carts.ListItems(ctx, cart.ID)
		return err
	})
	return cart, items, err
}

// AddItem добавляет товар в корзину со снимком текущей цены.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	return s.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		product, err := r.Products.Get(ctx, productID)
		if err != nil {
			return err
		}
		if !product.Sellable() {
			return domain.ErrProductNotFound
		}

		cart, err := s.ensureCart(ctx, r, userID)
		if err != nil {
			return err
		}

		now := s.now()
		item := domain.CartItem{
			ID:         uuid.NewString(),
			CartID:     cart.ID,
			ProductID:  productID,
			Qty:        qty,
			PriceMinor: product.PriceMinor,
			CreatedAt:  now,
		}
		item.TotalPriceMinor = item.LineTotal()
		if err := r.Carts.AddItem(ctx, item); err != nil {
			return err
		}
		return Recalculate(ctx, r, cart.ID, now)
	})
}

// RemoveItem убирает товар из корзины и пересчитывает агрегаты.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		cart, err := r.Carts.GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := r.Carts.RemoveItem(ctx, cart.ID, productID); err != nil {
			return err
		}
		return Recalculate(ctx, r, cart.ID, s.now())
	})
}

func (s *Service) ensureCart(ctx context.Context, r domain.Repos, userID string) (domain.Cart, error) {
	cart, err := r.Carts.GetByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{}, err
	}

	cart = domain.Cart{
		ID:          uuid.NewString(),
		UserID:      userID,
		LastUpdated: s.now(),
	}
	if err := r.Carts.Create(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}
