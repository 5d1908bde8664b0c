package kafka

import (
	"strings"
	"time"
)

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderPaid      EventType = "order.paid"
	EventTypeOrderShipped   EventType = "order.shipped"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderExpired   EventType = "order.expired"
	EventTypeOrderRefunded  EventType = "order.refunded"

	// Payment события
	EventTypePaymentConfirmed EventType = "payment.confirmed"
	EventTypePaymentFailed    EventType = "payment.failed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicPaymentEvents   = "storefront.payment.events"
	TopicDeadLetterQueue = "storefront.dlq" // Dead Letter Queue для failed messages
)

// TopicForEvent выбирает topic по типу события: payment.* идут в отдельный
// поток платёжных событий, всё остальное — в общий поток заказов.
func TopicForEvent(eventType string) string {
	if strings.HasPrefix(eventType, "payment.") {
		return TopicPaymentEvents
	}
	return TopicOrderEvents
}

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType   EventType              `json:"event_type"`
	OrderID     string                 `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	UserID      string                 `json:"user_id"`
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, orderNumber, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:   eventType,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		UserID:      userID,
		Status:      status,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}
}
