package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const notifyTimeout = 5 * time.Second

// ItemInput — позиция оформляемого заказа.
type ItemInput struct {
	ProductID     string
	Qty           int32
	PriceMinor    int64
	DiscountMinor int64
}

// CreateOrderInput — вход оформления заказа. TotalAmountMinor принимается от
// клиента и не пересчитывается по ценам каталога.
type CreateOrderInput struct {
	UserID           string
	ShippingAddress  []byte
	Items            []ItemInput
	TotalAmountMinor int64
	TaxMinor         int64
	ShippingFeeMinor int64
	PaymentMethod    string
	Notes            string
	// TransactionID задан, если клиент уже получил транзакцию от шлюза.
	TransactionID string
	// PaymentStatus — утверждение клиента о статусе оплаты; paid означает,
	// что остатки списываются сразу при создании.
	PaymentStatus domain.PaymentState
}

// FallbackOrderInput — вход защитного оформления, когда клиент не получил
// ответ первичного checkout. Адрес доставки берётся из профиля покупателя.
type FallbackOrderInput struct {
	UserID           string
	Items            []ItemInput
	TotalAmountMinor int64
	TaxMinor         int64
	ShippingFeeMinor int64
	PaymentMethod    string
	Notes            string
	TransactionID    string
	PaymentStatus    domain.PaymentState
}

// CreateOrderResult — ответ оформления.
type CreateOrderResult struct {
	ID              string
	OrderNumber     string
	Status          domain.OrderStatus
	GrandTotalMinor int64
	// Deduplicated выставляется fallback-оформлением, если заказ с таким
	// transaction_id уже существовал.
	Deduplicated bool
}

// Orchestrator строит заказ из входных позиций одной атомарной транзакцией.
type Orchestrator struct {
	store    domain.UnitOfWork
	gateway  domain.PaymentGateway
	notifier domain.Notifier
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	now      func() time.Time
}

// NewOrchestrator создаёт оркестратор оформления. metrics может быть nil (тесты).
func NewOrchestrator(
	store domain.UnitOfWork,
	gateway domain.PaymentGateway,
	notifier domain.Notifier,
	m *metrics.OrderMetrics,
	logger *log.Entry,
) *Orchestrator {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Orchestrator{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder выполняет оформление: валидация, снимки позиций, опциональный
// платёж — всё в одной транзакции. Любая ошибка откатывает заказ целиком.
func (o *Orchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	if err := validateInput(in); err != nil {
		return CreateOrderResult{}, err
	}

	var result CreateOrderResult
	err := o.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		res, err := o.buildOrder(ctx, r, in)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordCheckoutFailed()
		}
		return CreateOrderResult{}, err
	}

	if o.metrics != nil {
		o.metrics.RecordOrderCreated()
	}
	o.notifyAsync(in.UserID, result)
	return result, nil
}

// CreateFallbackOrder сначала ищет платёж по transaction_id и возвращает уже
// созданный заказ (дедупликация); иначе строит заказ по профилю покупателя.
func (o *Orchestrator) CreateFallbackOrder(ctx context.Context, in FallbackOrderInput) (CreateOrderResult, error) {
	if strings.TrimSpace(in.TransactionID) == "" {
		return CreateOrderResult{}, domain.ErrTransactionIDRequired
	}

	var result CreateOrderResult
	err := o.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		payment, err := r.Payments.GetByTransaction(ctx, in.TransactionID)
		switch {
		case err == nil:
			existing, err := r.Orders.Get(ctx, payment.OrderID)
			if err != nil {
				return fmt.Errorf("load deduplicated order: %w", err)
			}
			result = CreateOrderResult{
				ID:              existing.ID,
				OrderNumber:     existing.OrderNumber,
				Status:          existing.Status,
				GrandTotalMinor: existing.GrandTotalMinor,
				Deduplicated:    true,
			}
			return nil
		case !errors.Is(err, domain.ErrPaymentNotFound):
			return fmt.Errorf("lookup payment by transaction: %w", err)
		}

		profile, err := r.Profiles.Get(ctx, in.UserID)
		if err != nil {
			return fmt.Errorf("load buyer profile: %w", err)
		}

		createIn := CreateOrderInput{
			UserID:           in.UserID,
			ShippingAddress:  profile.Address,
			Items:            in.Items,
			TotalAmountMinor: in.TotalAmountMinor,
			TaxMinor:         in.TaxMinor,
			ShippingFeeMinor: in.ShippingFeeMinor,
			PaymentMethod:    in.PaymentMethod,
			Notes:            in.Notes,
			TransactionID:    in.TransactionID,
			PaymentStatus:    in.PaymentStatus,
		}
		if err := validateInput(createIn); err != nil {
			return err
		}

		res, err := o.buildOrder(ctx, r, createIn)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordCheckoutFailed()
		}
		return CreateOrderResult{}, err
	}

	if o.metrics != nil {
		if result.Deduplicated {
			o.metrics.RecordFallbackOrder("deduplicated")
		} else {
			o.metrics.RecordFallbackOrder("created")
		}
	}
	if !result.Deduplicated {
		o.notifyAsync(in.UserID, result)
	}
	return result, nil
}

// BeginPayment регистрирует заказ у платёжного шлюза и возвращает токен
// с redirect URL для покупателя.
func (o *Orchestrator) BeginPayment(ctx context.Context, orderID string) (domain.GatewayTransaction, error) {
	if o.gateway == nil {
		return domain.GatewayTransaction{}, domain.ErrGatewayUnavailable
	}

	repos := o.store.Repos()
	order, err := repos.Orders.Get(ctx, orderID)
	if err != nil {
		return domain.GatewayTransaction{}, err
	}

	profile, err := repos.Profiles.Get(ctx, order.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.GatewayTransaction{}, fmt.Errorf("load buyer profile: %w", err)
	}

	tx, err := o.gateway.CreateTransaction(ctx, order, profile)
	if err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Warn("gateway transaction failed")
		return domain.GatewayTransaction{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return tx, nil
}

// buildOrder выполняет шаги оформления внутри уже открытой транзакции.
func (o *Orchestrator) buildOrder(ctx context.Context, r domain.Repos, in CreateOrderInput) (CreateOrderResult, error) {
	now := o.now()
	paid := in.PaymentStatus == domain.PaymentStatePaid

	status := domain.OrderStatusPending
	paymentState := domain.PaymentStatePending
	if paid {
		status = domain.OrderStatusProcessing
		paymentState = domain.PaymentStatePaid
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		product, err := r.Products.Get(ctx, it.ProductID)
		if err != nil {
			return CreateOrderResult{}, fmt.Errorf("product %s: %w", it.ProductID, err)
		}

		item := domain.OrderItem{
			ID:            uuid.NewString(),
			ProductID:     product.ID,
			ProductName:   product.Name,
			ProductSKU:    product.SKU,
			Qty:           it.Qty,
			PriceMinor:    it.PriceMinor,
			DiscountMinor: it.DiscountMinor,
			CreatedAt:     now,
		}
		item.TotalPriceMinor = item.LineTotal()
		items = append(items, item)

		// Остаток списывается при создании только для уже оплаченного заказа;
		// для pending-заказа списание откладывается до подтверждения оплаты.
		if paid {
			if err := r.Products.DecrementStock(ctx, it.ProductID, it.Qty); err != nil {
				return CreateOrderResult{}, fmt.Errorf("decrement stock %s: %w", it.ProductID, err)
			}
			if o.metrics != nil {
				o.metrics.RecordStockDecrement()
			}
		}
	}

	order := domain.Order{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		OrderNumber:      generateOrderNumber(now, in.UserID),
		Status:           status,
		TotalAmountMinor: in.TotalAmountMinor,
		TaxMinor:         in.TaxMinor,
		ShippingFeeMinor: in.ShippingFeeMinor,
		ShippingAddress:  in.ShippingAddress,
		PaymentMethod:    in.PaymentMethod,
		PaymentStatus:    paymentState,
		Notes:            in.Notes,
		Items:            items,
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	order.RecalcGrandTotal()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return CreateOrderResult{}, errors.Join(errs...)
	}

	if err := r.Orders.Create(ctx, order); err != nil {
		return CreateOrderResult{}, fmt.Errorf("persist order: %w", err)
	}

	if in.TransactionID != "" {
		paymentStatus := domain.PaymentStatusPending
		var paymentDate *time.Time
		if paid {
			paymentStatus = domain.PaymentStatusCompleted
			paymentDate = &now
		}
		payment := domain.Payment{
			ID:            uuid.NewString(),
			OrderID:       order.ID,
			TransactionID: in.TransactionID,
			Method:        in.PaymentMethod,
			Status:        paymentStatus,
			AmountMinor:   order.GrandTotalMinor,
			PaymentDate:   paymentDate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := r.Payments.Create(ctx, payment); err != nil {
			return CreateOrderResult{}, fmt.Errorf("persist payment: %w", err)
		}
	}

	o.emit(ctx, r, order, domain.TimelineOrderCreated, "order.created", map[string]interface{}{
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
		"grand_total":  order.GrandTotalMinor,
	})

	return CreateOrderResult{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		GrandTotalMinor: order.GrandTotalMinor,
	}, nil
}

func (o *Orchestrator) emit(ctx context.Context, r domain.Repos, order domain.Order, timelineType, outboxType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	payload["ts"] = o.now().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("marshal event failed")
		return
	}

	if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     outboxType,
		Payload:       data,
	}); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue event failed")
	} else if o.metrics != nil {
		o.metrics.RecordOutboxEvent()
	}

	if err := r.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Occurred: o.now(),
	}); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
	} else if o.metrics != nil {
		o.metrics.RecordTimelineEvent()
	}
}

// notifyAsync отправляет подтверждение заказа в фоне. Ошибка уведомления
// не влияет на результат оформления.
func (o *Orchestrator) notifyAsync(userID string, result CreateOrderResult) {
	if o.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		repos := o.store.Repos()
		profile, err := repos.Profiles.Get(ctx, userID)
		if err != nil || profile.Email == "" {
			return
		}
		order, err := repos.Orders.Get(ctx, result.ID)
		if err != nil {
			return
		}

		summary := domain.OrderSummary{
			OrderNumber:     order.OrderNumber,
			GrandTotalMinor: order.GrandTotalMinor,
			Items:           order.Items,
		}
		if err := o.notifier.SendOrderConfirmation(ctx, profile.Email, summary); err != nil {
			o.logger.WithError(err).WithField("order_id", result.ID).Warn("order confirmation failed")
		}
	}()
}

func validateInput(in CreateOrderInput) error {
	var errs []error

	if strings.TrimSpace(in.UserID) == "" {
		errs = append(errs, domain.ErrUserRequired)
	}
	if len(in.ShippingAddress) == 0 {
		errs = append(errs, domain.ErrShippingAddressRequired)
	}
	if len(in.Items) == 0 {
		errs = append(errs, domain.ErrItemsRequired)
	}
	if in.TotalAmountMinor < 0 {
		errs = append(errs, domain.ErrAmountNegative)
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		errs = append(errs, domain.ErrPaymentMethodRequired)
	}
	for _, it := range in.Items {
		if it.Qty <= 0 {
			errs = append(errs, domain.ErrItemQtyInvalid)
		}
		if it.PriceMinor < 0 || it.DiscountMinor < 0 {
			errs = append(errs, domain.ErrItemPriceInvalid)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// generateOrderNumber собирает номер из метки времени, случайного суффикса и
// хвоста идентификатора покупателя. Цикл повторной генерации при коллизии
// отсутствует; уникальность страхует индекс по order_number.
func generateOrderNumber(now time.Time, userID string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	tail := userID
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return fmt.Sprintf("ORD-%s-%s-%s", now.Format("20060102150405"), suffix, strings.ToUpper(tail))
}
