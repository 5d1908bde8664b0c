package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	cartsvc "github.com/vladislavdragonenkov/storefront/internal/service/cart"
)

// Результаты обработки уведомления для метрик и логов.
const (
	resultPaid         = "paid"
	resultFailed       = "failed"
	resultPending      = "pending"
	resultDuplicate    = "duplicate"
	resultUnknownOrder = "unknown_order"
	resultNoop         = "noop"
	resultError        = "error"
)

// Reconciler идемпотентно применяет уведомления платёжного шлюза к
// заказу, платежу, остаткам и корзине. Доставка at-least-once: дубликаты
// и нарушение порядка — штатный режим.
type Reconciler struct {
	store   domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewReconciler создаёт reconciler. metrics может быть nil (тесты).
func NewReconciler(store domain.UnitOfWork, m *metrics.OrderMetrics, logger *log.Entry) *Reconciler {
	if logger == nil {
		logger = log.WithField("component", "reconciler")
	}
	return &Reconciler{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HandleNotification применяет одно уведомление внутри одной транзакции.
// Возвращаемая ошибка предназначена для логов: webhook-эндпойнт в любом
// случае отвечает HTTP 200.
func (rc *Reconciler) HandleNotification(ctx context.Context, n domain.GatewayNotification) error {
	start := time.Now()
	defer func() {
		if rc.metrics != nil {
			rc.metrics.RecordWebhookDuration(time.Since(start))
		}
	}()

	logger := rc.logger.WithFields(log.Fields{
		"order_number":   n.OrderNumber,
		"transaction_id": n.TransactionID,
	})

	newState := MapGatewayStatus(n.TransactionStatus, n.FraudStatus)

	result := resultError
	err := rc.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		order, err := r.Orders.GetByNumber(ctx, n.OrderNumber)
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Неизвестный заказ подтверждаем без мутаций и без записи в
			// таблицу идемпотентности: после создания заказа (fallback)
			// redelivery этого же уведомления должна примениться.
			result = resultUnknownOrder
			return nil
		}
		if err != nil {
			return fmt.Errorf("load order %s: %w", n.OrderNumber, err)
		}

		// Сравнение до/после: повторная доставка уже применённого
		// уведомления — no-op.
		if order.PaymentStatus == newState {
			result = resultNoop
			return nil
		}

		switch newState {
		case domain.PaymentStatePaid, domain.PaymentStateFailed:
			// Claim по transaction_id только для мутирующих исходов: он
			// закрывает гонку двух одновременных доставок одного
			// уведомления. Немутирующее "pending" с тем же transaction_id
			// не должно блокировать последующий settlement — банковский
			// перевод штатно присылает pending, а затем settlement.
			if n.TransactionID != "" {
				if err := r.Webhooks.Claim(ctx, domain.WebhookRecord{
					TransactionID: n.TransactionID,
					OrderNumber:   n.OrderNumber,
					Result:        newState,
					Payload:       n.Raw,
				}); err != nil {
					return err
				}
			}
		default:
			// challenge/pending не вызывает мутаций.
			result = resultPending
			return nil
		}

		if newState == domain.PaymentStatePaid {
			res, err := rc.applyPaid(ctx, r, order, n)
			if err != nil {
				return err
			}
			result = res
			return nil
		}

		res, err := rc.applyFailed(ctx, r, order, n)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrWebhookAlreadyProcessed):
		logger.Debug("duplicate gateway notification skipped")
		rc.record(resultDuplicate)
		return nil
	case err != nil:
		logger.WithError(err).Error("webhook reconciliation failed")
		rc.record(resultError)
		return err
	}

	logger.WithField("result", result).Info("gateway notification applied")
	rc.record(result)
	return nil
}

// applyPaid подтверждает оплату: заказ processing/paid, платёж completed,
// списание остатков по позициям и best-effort очистка корзины.
func (rc *Reconciler) applyPaid(ctx context.Context, r domain.Repos, order domain.Order, n domain.GatewayNotification) (string, error) {
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusProcessing {
		// Запоздалое "paid" для отменённого/возвращённого заказа не
		// воскрешает его: терминальные статусы не имеют выходов.
		rc.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Warn("paid notification for non-payable order ignored")
		return resultNoop, nil
	}

	now := rc.now()
	order.Status = domain.OrderStatusProcessing
	order.PaymentStatus = domain.PaymentStatePaid
	order.UpdatedAt = now
	order.RecalcGrandTotal()
	if err := r.Orders.Save(ctx, order); err != nil {
		return "", fmt.Errorf("save order: %w", err)
	}

	if err := rc.upsertPayment(ctx, r, order, n, domain.PaymentStatusCompleted, &now); err != nil {
		return "", err
	}

	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if err := r.Products.DecrementStock(ctx, item.ProductID, item.Qty); err != nil {
			return "", fmt.Errorf("decrement stock %s: %w", item.ProductID, err)
		}
		if rc.metrics != nil {
			rc.metrics.RecordStockDecrement()
		}
		productIDs = append(productIDs, item.ProductID)
	}

	// Очистка корзины best-effort: её сбой логируется, но не откатывает
	// подтверждение оплаты.
	rc.clearCart(ctx, r, order.UserID, productIDs)

	rc.emit(ctx, r, order, domain.TimelinePaymentConfirmed, "order.paid", "", map[string]interface{}{
		"transaction_id": n.TransactionID,
		"payment_type":   n.PaymentType,
	})
	return resultPaid, nil
}

// applyFailed отменяет заказ по отказу шлюза. Остатки не восстанавливаются:
// для pending-заказа они и не списывались.
func (rc *Reconciler) applyFailed(ctx context.Context, r domain.Repos, order domain.Order, n domain.GatewayNotification) (string, error) {
	if order.Status.Terminal() {
		return resultNoop, nil
	}

	now := rc.now()
	order.Status = domain.OrderStatusCancelled
	order.PaymentStatus = domain.PaymentStateFailed
	order.UpdatedAt = now
	order.RecalcGrandTotal()
	if err := r.Orders.Save(ctx, order); err != nil {
		return "", fmt.Errorf("save order: %w", err)
	}

	if err := rc.upsertPayment(ctx, r, order, n, domain.PaymentStatusFailed, nil); err != nil {
		return "", err
	}

	if rc.metrics != nil {
		rc.metrics.RecordOrderCancelled("payment_failure")
	}

	rc.emit(ctx, r, order, domain.TimelinePaymentFailed, "order.cancelled", n.TransactionStatus, map[string]interface{}{
		"transaction_id":     n.TransactionID,
		"transaction_status": n.TransactionStatus,
	})
	return resultFailed, nil
}

// upsertPayment создаёт или обновляет платёжную запись заказа, архивируя
// сырой payload уведомления.
func (rc *Reconciler) upsertPayment(
	ctx context.Context,
	r domain.Repos,
	order domain.Order,
	n domain.GatewayNotification,
	status domain.PaymentStatus,
	paymentDate *time.Time,
) error {
	now := rc.now()

	payment, err := r.Payments.GetByOrder(ctx, order.ID)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		payment = domain.Payment{
			ID:            uuid.NewString(),
			OrderID:       order.ID,
			TransactionID: n.TransactionID,
			Method:        order.PaymentMethod,
			Status:        status,
			AmountMinor:   order.GrandTotalMinor,
			PaymentDate:   paymentDate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		payment.GatewayResponse = append([]byte(nil), n.Raw...)
		if err := r.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load payment: %w", err)
	}

	payment.Status = status
	payment.TransactionID = n.TransactionID
	payment.PaymentDate = paymentDate
	payment.GatewayResponse = append([]byte(nil), n.Raw...)
	payment.UpdatedAt = now
	if err := r.Payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (rc *Reconciler) clearCart(ctx context.Context, r domain.Repos, userID string, productIDs []string) {
	cart, err := r.Carts.GetByUser(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return
	}
	if err != nil {
		rc.logger.WithError(err).WithField("user_id", userID).Warn("load cart for cleanup failed")
		return
	}

	if err := r.Carts.RemoveItemsByProduct(ctx, cart.ID, productIDs); err != nil {
		rc.logger.WithError(err).WithField("cart_id", cart.ID).Warn("remove purchased cart items failed")
		return
	}
	if err := cartsvc.Recalculate(ctx, r, cart.ID, rc.now()); err != nil {
		rc.logger.WithError(err).WithField("cart_id", cart.ID).Warn("cart recalculation failed")
	}
}

func (rc *Reconciler) emit(ctx context.Context, r domain.Repos, order domain.Order, timelineType, outboxType, reason string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	payload["order_number"] = order.OrderNumber
	payload["status"] = string(order.Status)
	payload["ts"] = rc.now().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		rc.logger.WithError(err).WithField("order_id", order.ID).Error("marshal event failed")
		return
	}

	if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     outboxType,
		Payload:       data,
	}); err != nil {
		rc.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue event failed")
	} else if rc.metrics != nil {
		rc.metrics.RecordOutboxEvent()
	}

	if err := r.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Reason:   reason,
		Occurred: rc.now(),
	}); err != nil {
		rc.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
	} else if rc.metrics != nil {
		rc.metrics.RecordTimelineEvent()
	}
}

func (rc *Reconciler) record(result string) {
	if rc.metrics != nil {
		rc.metrics.RecordWebhook(result)
	}
}
