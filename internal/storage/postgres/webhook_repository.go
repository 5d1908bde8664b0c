package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type webhookRepository struct {
	q querier
}

// Claim атомарно фиксирует уведомление: ON CONFLICT DO NOTHING на первичном
// ключе transaction_id решает гонку конкурирующих доставок внутри БД.
func (r *webhookRepository) Claim(ctx context.Context, record domain.WebhookRecord) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO webhook_records (
			transaction_id, order_number, result, payload, ttl_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (transaction_id) DO NOTHING
	`,
		record.TransactionID, record.OrderNumber, string(record.Result),
		record.Payload, record.TTLAt, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("claim webhook: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookAlreadyProcessed
	}
	return nil
}

func (r *webhookRepository) Get(ctx context.Context, transactionID string) (domain.WebhookRecord, error) {
	var (
		record domain.WebhookRecord
		result string
	)

	err := r.q.QueryRowContext(ctx, `
		SELECT transaction_id, order_number, result, payload, ttl_at, created_at
		FROM webhook_records
		WHERE transaction_id = $1
	`, transactionID).Scan(
		&record.TransactionID, &record.OrderNumber, &result,
		&record.Payload, &record.TTLAt, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookRecord{}, fmt.Errorf("%w: webhook record", domain.ErrNotFound)
		}
		return domain.WebhookRecord{}, fmt.Errorf("select webhook record: %w", err)
	}

	record.Result = domain.PaymentState(result)
	return record, nil
}

func (r *webhookRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}

	res, err := r.q.ExecContext(ctx, `
		DELETE FROM webhook_records
		WHERE transaction_id IN (
			SELECT transaction_id
			FROM webhook_records
			WHERE ttl_at <= $1
			ORDER BY ttl_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired webhooks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.WebhookRepository = (*webhookRepository)(nil)
