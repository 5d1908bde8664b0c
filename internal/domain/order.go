package domain

import "time"

// OrderStatus описывает жизненный цикл заказа витрины.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — оплата подтверждена, заказ готовится к отправке.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён (покупателем, сбоем оплаты или по таймауту).
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — средства возвращены покупателю.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов для покупателя.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransition проверяет допустимость перехода между статусами заказа.
// Таблица переходов закрыта: всё, что не перечислено, запрещено.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return to == OrderStatusProcessing || to == OrderStatusCancelled || to == OrderStatusRefunded
	case OrderStatusProcessing:
		return to == OrderStatusShipped || to == OrderStatusDelivered ||
			to == OrderStatusCancelled || to == OrderStatusRefunded
	case OrderStatusShipped:
		return to == OrderStatusDelivered
	default:
		return false
	}
}

// Cancellable сообщает, может ли покупатель отменить заказ из этого статуса.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

// OrderItem — позиция заказа со снимком товара на момент оформления.
// После создания не изменяется: изменение живой цены товара не должно
// ретроактивно менять исторический заказ.
type OrderItem struct {
	ID string
	// ProductID ссылается на товар только по идентификатору.
	ProductID string
	// ProductName и ProductSKU — снимок на момент оформления.
	ProductName string
	ProductSKU  string
	Qty         int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// DiscountMinor — скидка за единицу.
	DiscountMinor int64
	// TotalPriceMinor = (PriceMinor − DiscountMinor) × Qty.
	TotalPriceMinor int64
	CreatedAt       time.Time
}

// LineTotal пересчитывает сумму позиции.
func (i OrderItem) LineTotal() int64 {
	return (i.PriceMinor - i.DiscountMinor) * int64(i.Qty)
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	UserID      string
	OrderNumber string
	Status      OrderStatus
	// TotalAmountMinor принимается от клиента как есть и не пересчитывается
	// по актуальным ценам товаров (см. зафиксированный открытый вопрос в DESIGN.md).
	TotalAmountMinor int64
	TaxMinor         int64
	ShippingFeeMinor int64
	// GrandTotalMinor = TotalAmountMinor + TaxMinor + ShippingFeeMinor.
	GrandTotalMinor int64
	// ShippingAddress — непрозрачный сериализованный blob, ядро его не разбирает.
	ShippingAddress   []byte
	PaymentMethod     string
	PaymentStatus     PaymentState
	TrackingNumber    string
	EstimatedDelivery *time.Time
	Notes             string
	Items             []OrderItem
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecalcGrandTotal восстанавливает инвариант grand_total после любой мутации сумм.
func (o *Order) RecalcGrandTotal() {
	o.GrandTotalMinor = o.TotalAmountMinor + o.TaxMinor + o.ShippingFeeMinor
}

// ItemsTotal возвращает сумму всех позиций заказа.
func (o *Order) ItemsTotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.TotalPriceMinor
	}
	return sum
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.ShippingAddress) == 0 {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 || item.DiscountMinor < 0 || item.DiscountMinor > item.PriceMinor {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	if o.GrandTotalMinor != o.TotalAmountMinor+o.TaxMinor+o.ShippingFeeMinor {
		errs = append(errs, ErrInvalidGrandTotal)
	}

	return errs
}

// ErrInvalidGrandTotal — нарушен инвариант grand_total = amount + tax + shipping.
var ErrInvalidGrandTotal = wrap(ErrValidation, "grand_total does not equal total_amount + tax + shipping_fee")
