package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	// Возвращает ErrOrderNumberTaken при коллизии номера заказа.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetByNumber возвращает заказ по человекочитаемому номеру.
	GetByNumber(ctx context.Context, orderNumber string) (Order, error)
	// ListByUser возвращает заказы покупателя, свежие первыми; limit>0 ограничивает выборку.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListExpiredPending возвращает заказы pending/pending, созданные до before.
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	// Позиции заказа неизменяемы и при Save не перезаписываются.
	Save(ctx context.Context, order Order) error
}

// ProductRepository — доступ к каталогу. Ядро мутирует только поле stock.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	// DecrementStock уменьшает остаток: stock = max(0, stock − qty).
	// Повторный декремент молча поглощается ограничением нуля.
	DecrementStock(ctx context.Context, productID string, qty int32) error
	// RestoreStock безусловно увеличивает остаток.
	RestoreStock(ctx context.Context, productID string, qty int32) error
}

// CartRepository — хранилище корзин и их позиций.
type CartRepository interface {
	Create(ctx context.Context, cart Cart) error
	Get(ctx context.Context, id string) (Cart, error)
	GetByUser(ctx context.Context, userID string) (Cart, error)
	ListItems(ctx context.Context, cartID string) ([]CartItem, error)
	// AddItem вставляет позицию; ErrCartItemAlreadyExists при дубле (cart, product).
	AddItem(ctx context.Context, item CartItem) error
	RemoveItem(ctx context.Context, cartID, productID string) error
	// RemoveItemsByProduct удаляет позиции корзины для перечисленных товаров.
	RemoveItemsByProduct(ctx context.Context, cartID string, productIDs []string) error
	// SaveTotals перезаписывает агрегаты корзины после пересчёта.
	SaveTotals(ctx context.Context, cart Cart) error
}

// PaymentRepository — платёжные записи (одна на заказ).
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
	// GetByTransaction ищет платёж по внешнему идентификатору шлюза;
	// используется для дедупликации fallback-заказов.
	GetByTransaction(ctx context.Context, transactionID string) (Payment, error)
	Save(ctx context.Context, payment Payment) error
}

// WebhookRepository хранит обработанные уведомления шлюза по transaction_id.
type WebhookRepository interface {
	// Claim атомарно фиксирует уведомление; ErrWebhookAlreadyProcessed,
	// если transaction_id уже был применён.
	Claim(ctx context.Context, record WebhookRecord) error
	Get(ctx context.Context, transactionID string) (WebhookRecord, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// ProfileRepository — профили покупателей; используются fallback-оформлением
// и отправкой подтверждений.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (Profile, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// Repos объединяет все репозитории одного хранилища.
type Repos struct {
	Orders   OrderRepository
	Products ProductRepository
	Carts    CartRepository
	Payments PaymentRepository
	Webhooks WebhookRepository
	Profiles ProfileRepository
	Timeline TimelineRepository
	Outbox   OutboxRepository
}

// UnitOfWork задаёт транзакционную границу для многошаговых операций.
// Любая ошибка fn откатывает всю операцию целиком: частично созданный
// заказ/платёж/остаток никогда не становится видимым.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	// Repos возвращает нетранзакционный доступ для одиночных чтений.
	Repos() Repos
}
