package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// paymentRepository — in-memory реализация PaymentRepository.
// Платёж уникален по order_id; transaction_id индексируется для дедупликации.
type paymentRepository struct {
	store *Store
}

func (r *paymentRepository) Create(_ context.Context, payment domain.Payment) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[payment.OrderID]; exists {
		return domain.ErrPaymentAlreadyExists
	}
	s.payments[payment.OrderID] = clonePayment(payment)
	if payment.TransactionID != "" {
		s.paymentByTx[payment.TransactionID] = payment.OrderID
	}
	return nil
}

func (r *paymentRepository) GetByOrder(_ context.Context, orderID string) (domain.Payment, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.payments[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(payment), nil
}

func (r *paymentRepository) GetByTransaction(_ context.Context, transactionID string) (domain.Payment, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	orderID, ok := s.paymentByTx[transactionID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(s.payments[orderID]), nil
}

func (r *paymentRepository) Save(_ context.Context, payment domain.Payment) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[payment.OrderID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if current.TransactionID != "" && current.TransactionID != payment.TransactionID {
		delete(s.paymentByTx, current.TransactionID)
	}
	s.payments[payment.OrderID] = clonePayment(payment)
	if payment.TransactionID != "" {
		s.paymentByTx[payment.TransactionID] = payment.OrderID
	}
	return nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
