package domain

import "time"

// PaymentState описывает платёжный статус на самом заказе.
type PaymentState string

const (
	// PaymentStatePending — оплата инициирована, подтверждение от шлюза не получено.
	PaymentStatePending PaymentState = "pending"
	// PaymentStatePaid — шлюз подтвердил списание средств.
	PaymentStatePaid PaymentState = "paid"
	// PaymentStateFailed — шлюз отклонил платёж или платёж истёк.
	PaymentStateFailed PaymentState = "failed"
	// PaymentStateRefunded — средства возвращены покупателю.
	PaymentStateRefunded PaymentState = "refunded"
)

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s PaymentState) Valid() bool {
	switch s {
	case PaymentStatePending, PaymentStatePaid, PaymentStateFailed, PaymentStateRefunded:
		return true
	default:
		return false
	}
}

// PaymentStatus описывает состояние платёжной записи (1:1 с заказом).
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment — запись о транзакции платёжного шлюза для заказа.
type Payment struct {
	ID      string
	OrderID string
	// TransactionID — внешний идентификатор шлюза; служит ключом дедупликации
	// для fallback-заказов и webhook-уведомлений.
	TransactionID string
	Method        string
	Status        PaymentStatus
	AmountMinor   int64
	PaymentDate   *time.Time
	// GatewayResponse — сырой payload уведомления, сохраняется для аудита.
	GatewayResponse   []byte
	RefundAmountMinor int64
	RefundDate        *time.Time
	RefundReason      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate проверяет корректность полей платежа.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderNotFound)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if p.Method == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}

	return errs
}
