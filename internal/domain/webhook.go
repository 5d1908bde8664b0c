package domain

import "time"

// WebhookRecord фиксирует обработанное уведомление шлюза по transaction_id.
// Явная таблица идемпотентности закрывает окно гонки между двумя
// одновременными доставками одного уведомления, которое не закрывает
// простое сравнение статусов до/после.
type WebhookRecord struct {
	// TransactionID — ключ дедупликации (внешний идентификатор шлюза).
	TransactionID string
	OrderNumber   string
	// Result — применённый платёжный статус.
	Result PaymentState
	// Payload — сырое тело уведомления для аудита.
	Payload   []byte
	TTLAt     time.Time
	CreatedAt time.Time
}
