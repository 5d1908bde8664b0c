package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	q querier
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, total_items, total_price_minor, last_updated)
		VALUES ($1,$2,$3,$4,$5)
	`, cart.ID, cart.UserID, cart.TotalItems, cart.TotalPriceMinor, cart.LastUpdated)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: cart already exists for user", domain.ErrConflict)
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *cartRepository) GetByUser(ctx context.Context, userID string) (domain.Cart, error) {
	return r.getOne(ctx, `WHERE user_id = $1`, userID)
}

func (r *cartRepository) getOne(ctx context.Context, where string, arg any) (domain.Cart, error) {
	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, total_items, total_price_minor, last_updated
		FROM carts `+where, arg).Scan(
		&cart.ID, &cart.UserID, &cart.TotalItems, &cart.TotalPriceMinor, &cart.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	return cart, nil
}

func (r *cartRepository) ListItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, cart_id, product_id, qty, price_minor, total_price_minor, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at ASC, id ASC
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID,
			&item.Qty, &item.PriceMinor, &item.TotalPriceMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}

	return items, nil
}

func (r *cartRepository) AddItem(ctx context.Context, item domain.CartItem) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (
			id, cart_id, product_id, qty, price_minor, total_price_minor, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		item.ID, item.CartID, item.ProductID,
		item.Qty, item.PriceMinor, item.TotalPriceMinor, item.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCartItemAlreadyExists
		}
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) RemoveItem(ctx context.Context, cartID, productID string) error {
	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) RemoveItemsByProduct(ctx context.Context, cartID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}

	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND product_id = ANY($2)
	`, cartID, productIDs); err != nil {
		return fmt.Errorf("delete cart items by product: %w", err)
	}
	return nil
}

func (r *cartRepository) SaveTotals(ctx context.Context, cart domain.Cart) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE carts
		SET total_items = $2,
		    total_price_minor = $3,
		    last_updated = $4
		WHERE id = $1
	`, cart.ID, cart.TotalItems, cart.TotalPriceMinor, cart.LastUpdated)
	if err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
