package reaper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultSweepInterval = 15 * time.Minute
	defaultMaxAge        = time.Hour
	defaultBatchSize     = 100

	expiredNote = "Order automatically cancelled due to payment timeout"
)

// ErrSweepInProgress возвращается при попытке запустить sweep, пока
// предыдущий ещё не завершился.
var ErrSweepInProgress = errors.New("reaper: sweep already in progress")

var (
	reaperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reaper_runs_total",
		Help: "Total number of reaper sweeps grouped by result.",
	}, []string{"result"})
	reaperExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_reaper_expired_total",
		Help: "Total number of orders cancelled by the reaper.",
	})
	reaperLastExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_reaper_last_expired",
		Help: "Number of orders cancelled during the last sweep.",
	})
)

// Options задает параметры воркера отмены просроченных заказов.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
	Metrics   *metrics.OrderMetrics
	Now       func() time.Time
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между sweep-циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithMaxAge задает возраст pending-заказа, после которого он отменяется.
func WithMaxAge(maxAge time.Duration) Option {
	return func(opts *Options) {
		opts.MaxAge = maxAge
	}
}

// WithBatchSize задает лимит заказов на один sweep.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithMetrics задает бизнес-метрики заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock задает источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Worker периодически отменяет pending-заказы без подтверждения оплаты
// старше MaxAge. Повторный sweep не стартует, пока идёт текущий.
type Worker struct {
	store     domain.UnitOfWork
	logger    *log.Entry
	interval  time.Duration
	maxAge    time.Duration
	batchSize int
	metrics   *metrics.OrderMetrics
	now       func() time.Time

	sweepMu sync.Mutex
}

// NewWorker создает воркер отмены просроченных заказов.
func NewWorker(store domain.UnitOfWork, options ...Option) *Worker {
	opts := Options{
		Interval:  defaultSweepInterval,
		MaxAge:    defaultMaxAge,
		BatchSize: defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-reaper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Worker{
		store:     store,
		logger:    logger,
		interval:  opts.Interval,
		maxAge:    opts.MaxAge,
		batchSize: opts.BatchSize,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.store == nil {
		w.logger.Warn("order reaper is disabled: store is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	expired, err := w.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, ErrSweepInProgress) {
			reaperRunsTotal.WithLabelValues("skipped").Inc()
			w.logger.Warn("reaper sweep skipped: previous sweep still running")
			return
		}
		reaperRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("reaper sweep failed")
		return
	}

	reaperRunsTotal.WithLabelValues("ok").Inc()
	reaperLastExpired.Set(float64(expired))
	if expired > 0 {
		w.logger.WithField("expired", expired).Info("reaper sweep completed")
	}
}

// RunOnce выполняет один sweep и возвращает число отмененных заказов.
// Если sweep уже идёт, возвращает ErrSweepInProgress.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if !w.sweepMu.TryLock() {
		return 0, ErrSweepInProgress
	}
	defer w.sweepMu.Unlock()

	cutoff := w.now().Add(-w.maxAge)

	expired := 0
	err := w.store.WithinTx(ctx, func(ctx context.Context, r domain.Repos) error {
		orders, err := r.Orders.ListExpiredPending(ctx, cutoff, w.batchSize)
		if err != nil {
			return fmt.Errorf("list expired orders: %w", err)
		}

		for _, order := range orders {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.expire(ctx, r, order); err != nil {
				return fmt.Errorf("expire order %s: %w", order.ID, err)
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		reaperExpiredTotal.Add(float64(expired))
	}
	return expired, nil
}

// expire отменяет один просроченный заказ. Остатки не возвращаются:
// для неоплаченного pending-заказа они не списывались.
func (w *Worker) expire(ctx context.Context, r domain.Repos, order domain.Order) error {
	now := w.now()

	order.Status = domain.OrderStatusCancelled
	order.PaymentStatus = domain.PaymentStateFailed
	if order.Notes != "" {
		order.Notes += "\n"
	}
	order.Notes += expiredNote
	order.UpdatedAt = now
	order.RecalcGrandTotal()
	if err := r.Orders.Save(ctx, order); err != nil {
		return fmt.Errorf("save order: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
		"reason":       "payment_timeout",
		"ts":           now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := r.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "order.expired",
		Payload:       payload,
	}); err != nil {
		w.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue event failed")
	} else if w.metrics != nil {
		w.metrics.RecordOutboxEvent()
	}

	if err := r.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineOrderExpired,
		Reason:   "payment_timeout",
		Occurred: now,
	}); err != nil {
		w.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
	} else if w.metrics != nil {
		w.metrics.RecordTimelineEvent()
	}

	if w.metrics != nil {
		w.metrics.RecordOrderExpired()
	}

	w.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}).Info("pending order expired")
	return nil
}
