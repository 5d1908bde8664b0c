package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway — конфигурируемая заглушка платежного шлюза для тестов
// и локального запуска без внешнего провайдера.
type MockGateway struct {
	mu sync.Mutex

	Err error

	Calls  int
	Orders []string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateTransaction возвращает детерминированный платежный токен и считает вызовы.
func (m *MockGateway) CreateTransaction(ctx context.Context, order domain.Order, profile domain.Profile) (domain.GatewayTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.Orders = append(m.Orders, order.OrderNumber)

	if m.Err != nil {
		return domain.GatewayTransaction{}, m.Err
	}

	token := uuid.NewString()
	return domain.GatewayTransaction{
		Token:       token,
		RedirectURL: fmt.Sprintf("https://pay.example.test/v2/redirection/%s", token),
	}, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
