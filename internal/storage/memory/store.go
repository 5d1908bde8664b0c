package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store — in-memory хранилище витрины для локальной разработки и тестов.
// Все репозитории делят одно состояние под общим RWMutex; WithinTx
// сериализует транзакции и откатывает состояние целиком при ошибке.
type Store struct {
	// txMu сериализует транзакции между собой.
	txMu sync.Mutex
	// mu защищает состояние от конкурентных одиночных операций.
	mu sync.RWMutex

	products      map[string]domain.Product
	carts         map[string]domain.Cart
	cartByUser    map[string]string
	cartItems     map[string]map[string]domain.CartItem
	orders        map[string]domain.Order
	orderByNumber map[string]string
	payments      map[string]domain.Payment
	paymentByTx   map[string]string
	webhooks      map[string]domain.WebhookRecord
	profiles      map[string]domain.Profile
	timeline      map[string][]domain.TimelineEvent
	outbox        map[string]outboxRecord
	outboxSeq     []string
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		carts:         make(map[string]domain.Cart),
		cartByUser:    make(map[string]string),
		cartItems:     make(map[string]map[string]domain.CartItem),
		orders:        make(map[string]domain.Order),
		orderByNumber: make(map[string]string),
		payments:      make(map[string]domain.Payment),
		paymentByTx:   make(map[string]string),
		webhooks:      make(map[string]domain.WebhookRecord),
		profiles:      make(map[string]domain.Profile),
		timeline:      make(map[string][]domain.TimelineEvent),
		outbox:        make(map[string]outboxRecord),
	}
}

// Repos возвращает набор репозиториев поверх общего состояния.
func (s *Store) Repos() domain.Repos {
	return domain.Repos{
		Orders:   &orderRepository{store: s},
		Products: &productRepository{store: s},
		Carts:    &cartRepository{store: s},
		Payments: &paymentRepository{store: s},
		Webhooks: &webhookRepository{store: s},
		Profiles: &profileRepository{store: s},
		Timeline: &timelineRepository{store: s},
		Outbox:   &outboxRepository{store: s},
	}
}

// WithinTx выполняет fn атомарно: при ошибке всё состояние хранилища
// возвращается к снимку до начала транзакции. Транзакции выполняются
// строго последовательно.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r domain.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	if err := fn(ctx, s.Repos()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Seed наполняет хранилище начальными данными без транзакционной обвязки.
func (s *Store) Seed(products []domain.Product, profiles []domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, pr := range profiles {
		s.profiles[pr.UserID] = cloneProfile(pr)
	}
}

type storeSnapshot struct {
	products      map[string]domain.Product
	carts         map[string]domain.Cart
	cartByUser    map[string]string
	cartItems     map[string]map[string]domain.CartItem
	orders        map[string]domain.Order
	orderByNumber map[string]string
	payments      map[string]domain.Payment
	paymentByTx   map[string]string
	webhooks      map[string]domain.WebhookRecord
	profiles      map[string]domain.Profile
	timeline      map[string][]domain.TimelineEvent
	outbox        map[string]outboxRecord
	outboxSeq     []string
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := storeSnapshot{
		products:      make(map[string]domain.Product, len(s.products)),
		carts:         make(map[string]domain.Cart, len(s.carts)),
		cartByUser:    make(map[string]string, len(s.cartByUser)),
		cartItems:     make(map[string]map[string]domain.CartItem, len(s.cartItems)),
		orders:        make(map[string]domain.Order, len(s.orders)),
		orderByNumber: make(map[string]string, len(s.orderByNumber)),
		payments:      make(map[string]domain.Payment, len(s.payments)),
		paymentByTx:   make(map[string]string, len(s.paymentByTx)),
		webhooks:      make(map[string]domain.WebhookRecord, len(s.webhooks)),
		profiles:      make(map[string]domain.Profile, len(s.profiles)),
		timeline:      make(map[string][]domain.TimelineEvent, len(s.timeline)),
		outbox:        make(map[string]outboxRecord, len(s.outbox)),
		outboxSeq:     append([]string(nil), s.outboxSeq...),
	}

	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.carts {
		snap.carts[k] = v
	}
	for k, v := range s.cartByUser {
		snap.cartByUser[k] = v
	}
	for cartID, items := range s.cartItems {
		cp := make(map[string]domain.CartItem, len(items))
		for pid, item := range items {
			cp[pid] = item
		}
		snap.cartItems[cartID] = cp
	}
	for k, v := range s.orders {
		snap.orders[k] = cloneOrder(v)
	}
	for k, v := range s.orderByNumber {
		snap.orderByNumber[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = clonePayment(v)
	}
	for k, v := range s.paymentByTx {
		snap.paymentByTx[k] = v
	}
	for k, v := range s.webhooks {
		snap.webhooks[k] = cloneWebhook(v)
	}
	for k, v := range s.profiles {
		snap.profiles[k] = cloneProfile(v)
	}
	for k, v := range s.timeline {
		snap.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	for k, v := range s.outbox {
		snap.outbox[k] = cloneOutboxRecord(v)
	}

	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = snap.products
	s.carts = snap.carts
	s.cartByUser = snap.cartByUser
	s.cartItems = snap.cartItems
	s.orders = snap.orders
	s.orderByNumber = snap.orderByNumber
	s.payments = snap.payments
	s.paymentByTx = snap.paymentByTx
	s.webhooks = snap.webhooks
	s.profiles = snap.profiles
	s.timeline = snap.timeline
	s.outbox = snap.outbox
	s.outboxSeq = snap.outboxSeq
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	dst.ShippingAddress = append([]byte(nil), src.ShippingAddress...)
	if src.EstimatedDelivery != nil {
		ed := *src.EstimatedDelivery
		dst.EstimatedDelivery = &ed
	}
	return dst
}

func clonePayment(src domain.Payment) domain.Payment {
	dst := src
	dst.GatewayResponse = append([]byte(nil), src.GatewayResponse...)
	if src.PaymentDate != nil {
		pd := *src.PaymentDate
		dst.PaymentDate = &pd
	}
	if src.RefundDate != nil {
		rd := *src.RefundDate
		dst.RefundDate = &rd
	}
	return dst
}

func cloneWebhook(src domain.WebhookRecord) domain.WebhookRecord {
	dst := src
	dst.Payload = append([]byte(nil), src.Payload...)
	return dst
}

func cloneProfile(src domain.Profile) domain.Profile {
	dst := src
	dst.Address = append([]byte(nil), src.Address...)
	return dst
}

type outboxRecord struct {
	msg       domain.OutboxMessage
	status    string
	createdAt time.Time
}

func cloneOutboxRecord(src outboxRecord) outboxRecord {
	dst := src
	dst.msg.Payload = append([]byte(nil), src.msg.Payload...)
	return dst
}

var _ domain.UnitOfWork = (*Store)(nil)
