package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	q querier
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (
			id, name, sku, price_minor, stock, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		product.ID, product.Name, product.SKU, product.PriceMinor,
		product.Stock, product.IsActive, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate product", domain.ErrConflict)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, sku, price_minor, stock, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Name, &product.SKU, &product.PriceMinor,
		&product.Stock, &product.IsActive, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// DecrementStock списывает остаток с прижатием к нулю на стороне БД.
func (r *productRepository) DecrementStock(ctx context.Context, productID string, qty int32) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = GREATEST(stock - $2, 0),
		    updated_at = NOW()
		WHERE id = $1
	`, productID, int64(qty))
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return requireProduct(res)
}

func (r *productRepository) RestoreStock(ctx context.Context, productID string, qty int32) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, int64(qty))
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return requireProduct(res)
}

func requireProduct(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
