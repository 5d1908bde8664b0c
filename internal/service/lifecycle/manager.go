package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Manager управляет переходами жизненного цикла заказа: отмена покупателем,
// возвраты и административные мутации. Каждая операция — одна транзакция.
type Manager struct {
	store   domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewManager создаёт менеджер жизненного цикла. metrics может быть nil (тесты).
func NewManager(store domain.UnitOfWork, m *metrics.OrderMetrics, logger *log.Entry) *Manager {
	if logger == nil {
		logger = log.WithField("component", "lifecycle")
	}
	return &Manager{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает заказ; при непустом userID проверяет принадлежность.
func (m *Manager) Get(ctx context.Context, orderID, userID string) (domain.Order, error) {
	order, err := m.store.Repos().Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if userID != "" && order.UserID != userID {
		return domain.Order{}, domain.ErrOrderNotOwned
	}
	return order, nil
}

// List возвращает заказы покупателя, свежие первыми.
func (m *Manager) List(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return m.store.Repos().Orders.ListByUser(ctx, userID, limit)
}

// Timeline возвращает журнал событий заказа.
func (m *Manager) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := m.store.Repos().Orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return m.store.Repos().Timeline.List(ctx, orderID)
}

// Cancel отменяет заказ по запросу покупателя. Разрешено только из
// pending/processing; остатки возвращаются, если оплата была подтверждена,
// платёж помечается возвращённым.
func (m *Manager) Cancel(ctx context.Context, orderID, userID, reason string) error {
	err := m.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		order, err := r.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if userID != "" && order.UserID != userID {
			return domain.ErrOrderNotOwned
		}
		if !order.Status.Cancellable() {
			return domain.ErrOrderNotCancellable
		}

		// Остаток возвращается ровно для списанных количеств: списание
		// происходит только вместе с подтверждением оплаты.
		wasPaid := order.PaymentStatus == domain.PaymentStatePaid
		if wasPaid {
			if err := m.restoreStock(ctx, r, order); err != nil {
				return err
			}
		}

		now := m.now()
		order.Status = domain.OrderStatusCancelled
		if wasPaid {
			order.PaymentStatus = domain.PaymentStateRefunded
		} else {
			order.PaymentStatus = domain.PaymentStateFailed
		}
		order.UpdatedAt = now
		order.RecalcGrandTotal()
		if err := r.Orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		if err := m.refundPayment(ctx, r, order, order.GrandTotalMinor, reason); err != nil {
			return err
		}

		m.emit(ctx, r, order, domain.TimelineOrderCancelled, "order.cancelled", reason, nil)
		return nil
	})
	if err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.RecordOrderCancelled("buyer")
	}
	return nil
}

// Refund переводит заказ в refunded по решению администратора.
// Допускается из pending/processing; остатки возвращаются, если были списаны.
func (m *Manager) Refund(ctx context.Context, orderID string, amountMinor int64, reason string) error {
	return m.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		order, err := r.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(domain.OrderStatusRefunded) {
			return domain.ErrInvalidTransition
		}

		if order.PaymentStatus == domain.PaymentStatePaid {
			if err := m.restoreStock(ctx, r, order); err != nil {
				return err
			}
		}

		if amountMinor <= 0 || amountMinor > order.GrandTotalMinor {
			amountMinor = order.GrandTotalMinor
		}

		now := m.now()
		order.Status = domain.OrderStatusRefunded
		order.PaymentStatus = domain.PaymentStateRefunded
		order.UpdatedAt = now
		order.RecalcGrandTotal()
		if err := r.Orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		if err := m.refundPayment(ctx, r, order, amountMinor, reason); err != nil {
			return err
		}

		m.emit(ctx, r, order, domain.TimelineOrderRefunded, "order.refunded", reason, map[string]interface{}{
			"amount_minor": amountMinor,
		})
		return nil
	})
}

// UpdateStatus — административный перевод заказа в новый статус.
func (m *Manager) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, note string) error {
	if !to.Valid() {
		return domain.ErrInvalidTransition
	}

	return m.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		order, err := r.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(to) {
			return domain.ErrInvalidTransition
		}

		outboxType := "order.status_changed"
		if to == domain.OrderStatusShipped {
			outboxType = "order.shipped"
		}

		order.Status = to
		order.UpdatedAt = m.now()
		order.RecalcGrandTotal()
		if err := r.Orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		m.emit(ctx, r, order, domain.TimelineStatusChanged, outboxType, note, map[string]interface{}{
			"new_status": string(to),
		})
		return nil
	})
}

// SetTracking назначает трек-номер и ожидаемую дату доставки.
// Назначение трека pending-заказу подтверждает его вручную: заказ переходит
// в processing, остатки списываются и оплата помечается подтверждённой —
// так отмена такого заказа вернёт списанные количества.
func (m *Manager) SetTracking(ctx context.Context, orderID, trackingNumber string, estimatedDelivery *time.Time) error {
	if trackingNumber == "" {
		return fmt.Errorf("%w: tracking_number is required", domain.ErrValidation)
	}

	return m.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		order, err := r.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case domain.OrderStatusPending:
			// Ручное подтверждение эквивалентно оплате: остатки списываются
			// и платёжный статус становится paid, чтобы последующая отмена
			// вернула ровно списанные количества.
			if err := m.decrementStock(ctx, r, order); err != nil {
				return err
			}
			order.Status = domain.OrderStatusProcessing
			order.PaymentStatus = domain.PaymentStatePaid
			if err := m.confirmPayment(ctx, r, order); err != nil {
				return err
			}
		case domain.OrderStatusProcessing:
			order.Status = domain.OrderStatusShipped
		case domain.OrderStatusShipped:
			// Повторное назначение трека не меняет статус.
		default:
			return domain.ErrInvalidTransition
		}

		order.TrackingNumber = trackingNumber
		order.EstimatedDelivery = estimatedDelivery
		order.UpdatedAt = m.now()
		order.RecalcGrandTotal()
		if err := r.Orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		m.emit(ctx, r, order, domain.TimelineStatusChanged, "order.shipped", "tracking assigned", map[string]interface{}{
			"tracking_number": trackingNumber,
			"new_status":      string(order.Status),
		})
		return nil
	})
}

// UpdatePaymentStatus — административная правка платёжного статуса заказа
// с синхронизацией платёжной записи.
func (m *Manager) UpdatePaymentStatus(ctx context.Context, orderID string, state domain.PaymentState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown payment status", domain.ErrValidation)
	}

	return m.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		order, err := r.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}

		confirming := state == domain.PaymentStatePaid && order.PaymentStatus != domain.PaymentStatePaid
		if confirming {
			if order.Status.Terminal() {
				return domain.ErrInvalidTransition
			}
			// Подтверждение оплаты проходит тот же путь, что и settlement:
			// списание остатков и pending -> processing.
			if err := m.decrementStock(ctx, r, order); err != nil {
				return err
			}
			if order.Status == domain.OrderStatusPending {
				order.Status = domain.OrderStatusProcessing
			}
		}

		order.PaymentStatus = state
		order.UpdatedAt = m.now()
		order.RecalcGrandTotal()
		if err := r.Orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		if confirming {
			m.emit(ctx, r, order, domain.TimelinePaymentConfirmed, "order.paid", "payment confirmed by admin", nil)
		}

		payment, err := r.Payments.GetByOrder(ctx, order.ID)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load payment: %w", err)
		}

		switch state {
		case domain.PaymentStatePaid:
			payment.Status = domain.PaymentStatusCompleted
			paymentDate := m.now()
			payment.PaymentDate = &paymentDate
		case domain.PaymentStateFailed:
			payment.Status = domain.PaymentStatusFailed
		case domain.PaymentStateRefunded:
			payment.Status = domain.PaymentStatusRefunded
		default:
			payment.Status = domain.PaymentStatusPending
		}
		payment.UpdatedAt = m.now()
		if err := r.Payments.Save(ctx, payment); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		return nil
	})
}

func (m *Manager) decrementStock(ctx context.Context, r domain.Repos, order domain.Order) error {
	for _, item := range order.Items {
		if err := r.Products.DecrementStock(ctx, item.ProductID, item.Qty); err != nil {
			return fmt.Errorf("decrement stock %s: %w", item.ProductID, err)
		}
		if m.metrics != nil {
			m.metrics.RecordStockDecrement()
		}
	}
	return nil
}

// confirmPayment синхронизирует платёжную запись с подтверждением оплаты.
func (m *Manager) confirmPayment(ctx context.Context, r domain.Repos, order domain.Order) error {
	payment, err := r.Payments.GetByOrder(ctx, order.ID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}

	now := m.now()
	payment.Status = domain.PaymentStatusCompleted
	payment.PaymentDate = &now
	payment.UpdatedAt = now
	if err := r.Payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (m *Manager) restoreStock(ctx context.Context, r domain.Repos, order domain.Order) error {
	for _, item := range order.Items {
		if err := r.Products.RestoreStock(ctx, item.ProductID, item.Qty); err != nil {
			return fmt.Errorf("restore stock %s: %w", item.ProductID, err)
		}
		if m.metrics != nil {
			m.metrics.RecordStockRestore()
		}
	}
	return nil
}

func (m *Manager) refundPayment(ctx context.Context, r domain.Repos, order domain.Order, amountMinor int64, reason string) error {
	payment, err := r.Payments.GetByOrder(ctx, order.ID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}

	now := m.now()
	if order.PaymentStatus == domain.PaymentStateRefunded {
		payment.Status = domain.PaymentStatusRefunded
		payment.RefundAmountMinor = amountMinor
		payment.RefundDate = &now
		payment.RefundReason = reason
	} else {
		payment.Status = domain.PaymentStatusFailed
	}
	payment.UpdatedAt = now
	if err := r.Payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, r domain.Repos, order domain.Order, timelineType, outboxType, reason string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	payload["order_number"] = order.OrderNumber
	payload["status"] = string(order.Status)
	if reason != "" {
		payload["reason"] = reason
	}
	payload["ts"] = m.now().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("marshal event failed")
		return
	}

	if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     outboxType,
		Payload:       data,
	}); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue event failed")
	} else if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}

	if err := r.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Reason:   reason,
		Occurred: m.now(),
	}); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
	} else if m.metrics != nil {
		m.metrics.RecordTimelineEvent()
	}
}
