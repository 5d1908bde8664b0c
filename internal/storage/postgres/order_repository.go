package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	q querier
}

const orderColumns = `
	id, user_id, order_number, status,
	total_amount_minor, tax_minor, shipping_fee_minor, grand_total_minor,
	shipping_address, payment_method, payment_status,
	tracking_number, estimated_delivery, notes,
	version, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		order.ID, order.UserID, order.OrderNumber, string(order.Status),
		order.TotalAmountMinor, order.TaxMinor, order.ShippingFeeMinor, order.GrandTotalMinor,
		order.ShippingAddress, order.PaymentMethod, string(order.PaymentStatus),
		order.TrackingNumber, order.EstimatedDelivery, order.Notes,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderNumberTaken
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, product_name, product_sku,
				qty, price_minor, discount_minor, total_price_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			item.ID, order.ID, item.ProductID, item.ProductName, item.ProductSKU,
			item.Qty, item.PriceMinor, item.DiscountMinor, item.TotalPriceMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *orderRepository) GetByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.getOne(ctx, `WHERE order_number = $1`, orderNumber)
}

func (r *orderRepository) getOne(ctx context.Context, where string, arg any) (domain.Order, error) {
	row := r.q.QueryRowContext(ctx, `SELECT`+orderColumns+` FROM orders `+where, arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+` LIMIT $2`, userID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return r.collect(ctx, rows)
}

func (r *orderRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryContext(ctx, `SELECT`+orderColumns+`
		FROM orders
		WHERE status = $1
		  AND payment_status = $2
		  AND created_at < $3
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`, string(domain.OrderStatusPending), string(domain.PaymentStatePending), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired orders: %w", err)
	}

	return r.collect(ctx, rows)
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    total_amount_minor = $2,
		    tax_minor = $3,
		    shipping_fee_minor = $4,
		    grand_total_minor = $5,
		    shipping_address = $6,
		    payment_method = $7,
		    payment_status = $8,
		    tracking_number = $9,
		    estimated_delivery = $10,
		    notes = $11,
		    version = version + 1,
		    updated_at = $12
		WHERE id = $13
		  AND version = $14
	`,
		string(order.Status),
		order.TotalAmountMinor,
		order.TaxMinor,
		order.ShippingFeeMinor,
		order.GrandTotalMinor,
		order.ShippingAddress,
		order.PaymentMethod,
		string(order.PaymentStatus),
		order.TrackingNumber,
		order.EstimatedDelivery,
		order.Notes,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) collect(ctx context.Context, rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order             domain.Order
		status            string
		paymentStatus     string
		estimatedDelivery sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.UserID, &order.OrderNumber, &status,
		&order.TotalAmountMinor, &order.TaxMinor, &order.ShippingFeeMinor, &order.GrandTotalMinor,
		&order.ShippingAddress, &order.PaymentMethod, &paymentStatus,
		&order.TrackingNumber, &estimatedDelivery, &order.Notes,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentState(paymentStatus)
	if estimatedDelivery.Valid {
		t := estimatedDelivery.Time.UTC()
		order.EstimatedDelivery = &t
	}

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, product_name, product_sku,
		       qty, price_minor, discount_minor, total_price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.ProductName, &item.ProductSKU,
			&item.Qty, &item.PriceMinor, &item.DiscountMinor, &item.TotalPriceMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
