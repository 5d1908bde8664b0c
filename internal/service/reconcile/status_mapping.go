package reconcile

import "github.com/vladislavdragonenkov/storefront/internal/domain"

// MapGatewayStatus переводит пару (transaction_status, fraud_status) шлюза во
// внутренний платёжный статус. Таблица фиксированная:
//
//	capture + accept  → paid
//	settlement        → paid
//	cancel/deny/expire→ failed
//	challenge/pending → pending
//
// Неизвестные статусы трактуются как pending — мутаций они не вызывают.
func MapGatewayStatus(transactionStatus, fraudStatus string) domain.PaymentState {
	switch transactionStatus {
	case "capture":
		switch fraudStatus {
		case "accept", "":
			return domain.PaymentStatePaid
		case "challenge":
			return domain.PaymentStatePending
		default:
			return domain.PaymentStateFailed
		}
	case "settlement":
		return domain.PaymentStatePaid
	case "cancel", "deny", "expire", "failure":
		return domain.PaymentStateFailed
	default:
		return domain.PaymentStatePending
	}
}
