package notify

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockNotifier — заглушка почтовых уведомлений: пишет факт отправки в лог
// и запоминает адресатов. Используется в тестах и локальном запуске.
type MockNotifier struct {
	mu sync.Mutex

	Err error

	Calls      int
	Recipients []string
}

// NewMockNotifier возвращает mock с успешным сценарием по умолчанию.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// SendOrderConfirmation запоминает адресата и возвращает настроенный результат.
func (m *MockNotifier) SendOrderConfirmation(ctx context.Context, email string, summary domain.OrderSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.Recipients = append(m.Recipients, email)

	if m.Err != nil {
		return m.Err
	}

	log.WithFields(log.Fields{
		"component":    "notify",
		"email":        email,
		"order_number": summary.OrderNumber,
	}).Info("order confirmation sent")
	return nil
}

var _ domain.Notifier = (*MockNotifier)(nil)
