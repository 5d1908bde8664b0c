package domain

import "time"

// Cart — корзина покупателя (1:1 с пользователем). Итоговые поля
// пересчитываются сервисом корзины и никогда не редактируются клиентами напрямую.
type Cart struct {
	ID              string
	UserID          string
	TotalItems      int32
	TotalPriceMinor int64
	LastUpdated     time.Time
}

// CartItem — позиция корзины. Цена фиксируется на момент добавления.
// Пара (CartID, ProductID) уникальна.
type CartItem struct {
	ID              string
	CartID          string
	ProductID       string
	Qty             int32
	PriceMinor      int64
	TotalPriceMinor int64
	CreatedAt       time.Time
}

// LineTotal пересчитывает сумму позиции корзины.
func (i CartItem) LineTotal() int64 {
	return i.PriceMinor * int64(i.Qty)
}
