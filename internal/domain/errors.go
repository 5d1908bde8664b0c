package domain

import "errors"

// Базовые категории ошибок. Конкретные sentinel-ошибки оборачивают одну из
// категорий, чтобы транспортный слой мог выбрать HTTP-статус через errors.Is.
var (
	// ErrValidation — некорректный или неполный ввод (HTTP 400).
	ErrValidation = errors.New("validation error")
	// ErrNotFound — сущность отсутствует (HTTP 404).
	ErrNotFound = errors.New("not found")
	// ErrConflict — недопустимый переход состояния или конфликт данных (HTTP 400).
	ErrConflict = errors.New("conflict")
	// ErrAuthorization — попытка действия над чужим заказом (HTTP 403).
	ErrAuthorization = errors.New("authorization error")
	// ErrTransient — временная ошибка внешней системы, имеет смысл повторить.
	ErrTransient = errors.New("transient external error")
)

var (
	// Ошибки валидации входа оформления заказа.
	ErrUserRequired            = wrap(ErrValidation, "user_id is required")
	ErrShippingAddressRequired = wrap(ErrValidation, "shipping_address is required")
	ErrItemsRequired           = wrap(ErrValidation, "order must contain at least one item")
	ErrItemQtyInvalid          = wrap(ErrValidation, "item qty must be greater than zero")
	ErrItemPriceInvalid        = wrap(ErrValidation, "item price must be non-negative")
	ErrAmountNegative          = wrap(ErrValidation, "total_amount must be non-negative")
	ErrPaymentMethodRequired   = wrap(ErrValidation, "payment_method is required")
	ErrTransactionIDRequired   = wrap(ErrValidation, "transaction_id is required")

	// Ошибки отсутствия сущностей.
	ErrOrderNotFound   = wrap(ErrNotFound, "order not found")
	ErrProductNotFound = wrap(ErrNotFound, "product not found")
	ErrCartNotFound    = wrap(ErrNotFound, "cart not found")
	ErrPaymentNotFound = wrap(ErrNotFound, "payment not found")

	// Конфликты жизненного цикла и данных.
	ErrOrderNotCancellable   = wrap(ErrConflict, "order cannot be cancelled in its current status")
	ErrInvalidTransition     = wrap(ErrConflict, "illegal order status transition")
	ErrOrderNumberTaken      = wrap(ErrConflict, "order number already exists")
	ErrOrderVersionConflict  = wrap(ErrConflict, "order version conflict")
	ErrPaymentAlreadyExists  = wrap(ErrConflict, "payment already exists for order")
	ErrCartItemAlreadyExists = wrap(ErrConflict, "cart already contains this product")

	// ErrOrderNotOwned возвращается при попытке покупателя действовать над чужим заказом.
	ErrOrderNotOwned = wrap(ErrAuthorization, "order belongs to another user")

	// ErrWebhookAlreadyProcessed сигнализирует, что уведомление с таким
	// transaction_id уже применено; повторная доставка — no-op.
	ErrWebhookAlreadyProcessed = errors.New("webhook notification already processed")

	// ErrGatewayUnavailable — платёжный шлюз недоступен.
	ErrGatewayUnavailable = wrap(ErrTransient, "payment gateway unavailable")
	// ErrOutboxPublish — ошибка публикации сообщения из outbox.
	ErrOutboxPublish = wrap(ErrTransient, "outbox publish failed")
)

// IsRetryable проверяет, относится ли ошибка к временным.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий заказа.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

func wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// kindError связывает конкретную ошибку с её категорией для errors.Is.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }
