package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type paymentRepository struct {
	q querier
}

const paymentColumns = `
	id, order_id, transaction_id, method, status, amount_minor,
	payment_date, gateway_response,
	refund_amount_minor, refund_date, refund_reason,
	created_at, updated_at`

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		payment.ID, payment.OrderID, payment.TransactionID,
		payment.Method, string(payment.Status), payment.AmountMinor,
		payment.PaymentDate, payment.GatewayResponse,
		payment.RefundAmountMinor, payment.RefundDate, payment.RefundReason,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentAlreadyExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.getOne(ctx, `WHERE order_id = $1`, orderID)
}

func (r *paymentRepository) GetByTransaction(ctx context.Context, transactionID string) (domain.Payment, error) {
	if transactionID == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.getOne(ctx, `WHERE transaction_id = $1`, transactionID)
}

func (r *paymentRepository) getOne(ctx context.Context, where string, arg any) (domain.Payment, error) {
	var (
		payment     domain.Payment
		status      string
		paymentDate sql.NullTime
		refundDate  sql.NullTime
	)

	err := r.q.QueryRowContext(ctx, `SELECT`+paymentColumns+` FROM payments `+where, arg).Scan(
		&payment.ID, &payment.OrderID, &payment.TransactionID,
		&payment.Method, &status, &payment.AmountMinor,
		&paymentDate, &payment.GatewayResponse,
		&payment.RefundAmountMinor, &refundDate, &payment.RefundReason,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}

	payment.Status = domain.PaymentStatus(status)
	if paymentDate.Valid {
		t := paymentDate.Time.UTC()
		payment.PaymentDate = &t
	}
	if refundDate.Valid {
		t := refundDate.Time.UTC()
		payment.RefundDate = &t
	}

	return payment, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET transaction_id = $2,
		    method = $3,
		    status = $4,
		    amount_minor = $5,
		    payment_date = $6,
		    gateway_response = $7,
		    refund_amount_minor = $8,
		    refund_date = $9,
		    refund_reason = $10,
		    updated_at = $11
		WHERE id = $1
	`,
		payment.ID, payment.TransactionID, payment.Method, string(payment.Status),
		payment.AmountMinor, payment.PaymentDate, payment.GatewayResponse,
		payment.RefundAmountMinor, payment.RefundDate, payment.RefundReason,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
