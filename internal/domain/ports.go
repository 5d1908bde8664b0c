package domain

import (
	"context"
	"time"
)

// Profile — минимальный профиль покупателя, который нужен ядру:
// адрес для fallback-заказов и email для подтверждений.
type Profile struct {
	UserID  string
	Name    string
	Email   string
	Address []byte
}

// GatewayTransaction — результат создания транзакции на стороне шлюза.
type GatewayTransaction struct {
	Token       string
	RedirectURL string
}

// PaymentGateway описывает исходящее взаимодействие с платёжным шлюзом.
type PaymentGateway interface {
	// CreateTransaction регистрирует заказ у шлюза и возвращает токен
	// и redirect URL для покупателя.
	CreateTransaction(ctx context.Context, order Order, customer Profile) (GatewayTransaction, error)
}

// GatewayNotification — входящее уведомление шлюза. Доставка at-least-once,
// порядок не гарантируется.
type GatewayNotification struct {
	OrderNumber       string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
	GrossAmount       string `json:"gross_amount,omitempty"`
	// Raw — исходное тело уведомления для архивации в платёжной записи.
	Raw []byte `json:"-"`
}

// OrderSummary — содержимое письма-подтверждения.
type OrderSummary struct {
	OrderNumber     string
	GrandTotalMinor int64
	Items           []OrderItem
}

// Notifier отправляет покупателю подтверждение заказа.
// Вызовы fire-and-forget: ошибка не должна прерывать оформление.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, email string, summary OrderSummary) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
