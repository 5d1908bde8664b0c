package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики ядра заказов: оформление, сверка платежей,
// движение остатков и жизненный цикл.
type OrderMetrics struct {
	ordersCreated   prometheus.Counter
	fallbackOrders  *prometheus.CounterVec
	checkoutFailed  prometheus.Counter
	ordersCancelled *prometheus.CounterVec
	ordersExpired   prometheus.Counter

	webhooksProcessed *prometheus.CounterVec
	webhookDuration   prometheus.Histogram

	stockDecrements prometheus.Counter
	stockRestores   prometheus.Counter

	checkoutDuration prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в default registerer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer;
// используется тестами с изолированным registry.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created by the checkout orchestrator",
		}),
		fallbackOrders: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_fallback_orders_total",
			Help: "Total number of fallback order requests grouped by outcome",
		}, []string{"outcome"}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of failed checkout attempts",
		}),
		ordersCancelled: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_cancelled_total",
			Help: "Total number of cancelled orders grouped by initiator",
		}, []string{"initiator"}),
		ordersExpired: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_expired_total",
			Help: "Total number of orders expired by the abandoned order reaper",
		}),
		webhooksProcessed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_webhooks_processed_total",
			Help: "Total number of gateway notifications grouped by result",
		}, []string{"result"}),
		webhookDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_webhook_duration_seconds",
			Help:    "Duration of webhook reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stockDecrements: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_decrements_total",
			Help: "Total number of stock decrement operations",
		}),
		stockRestores: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_restores_total",
			Help: "Total number of stock restore operations",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordFallbackOrder фиксирует исход fallback-запроса: created или deduplicated.
func (m *OrderMetrics) RecordFallbackOrder(outcome string) {
	m.fallbackOrders.WithLabelValues(outcome).Inc()
}

// RecordCheckoutFailed увеличивает счётчик неудачных оформлений.
func (m *OrderMetrics) RecordCheckoutFailed() {
	m.checkoutFailed.Inc()
}

// RecordOrderCancelled фиксирует отмену: buyer, payment_failure или reaper.
func (m *OrderMetrics) RecordOrderCancelled(initiator string) {
	m.ordersCancelled.WithLabelValues(initiator).Inc()
}

// RecordOrderExpired увеличивает счётчик истёкших заказов.
func (m *OrderMetrics) RecordOrderExpired() {
	m.ordersExpired.Inc()
}

// RecordWebhook фиксирует результат обработки уведомления:
// paid, failed, pending, duplicate, unknown_order, noop или error.
func (m *OrderMetrics) RecordWebhook(result string) {
	m.webhooksProcessed.WithLabelValues(result).Inc()
}

// RecordWebhookDuration записывает длительность сверки уведомления.
func (m *OrderMetrics) RecordWebhookDuration(d time.Duration) {
	m.webhookDuration.Observe(d.Seconds())
}

// RecordStockDecrement увеличивает счётчик списаний остатка.
func (m *OrderMetrics) RecordStockDecrement() {
	m.stockDecrements.Inc()
}

// RecordStockRestore увеличивает счётчик возвратов остатка.
func (m *OrderMetrics) RecordStockRestore() {
	m.stockRestores.Inc()
}

// RecordCheckoutDuration записывает длительность оформления заказа.
func (m *OrderMetrics) RecordCheckoutDuration(d time.Duration) {
	m.checkoutDuration.Observe(d.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
