package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	cartsvc "github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/reaper"
	"github.com/vladislavdragonenkov/storefront/internal/service/reconcile"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Run собирает все компоненты и блокируется до отмены ctx либо падения
// HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	bundle, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bundle.close()

	orderMetrics := metrics.NewOrderMetrics()

	// NOTE: Using mock gateway/notifier for development/demo purposes.
	// In production, replace with real payment gateway and mailer clients.
	paymentGateway := gateway.NewMockGateway()
	notifier := notify.NewMockNotifier()

	checkoutSvc := checkout.NewOrchestrator(bundle.store, paymentGateway, notifier, orderMetrics, nil)
	reconciler := reconcile.NewReconciler(bundle.store, orderMetrics, nil)
	cartService := cartsvc.NewService(bundle.store, nil)
	lifecycleMgr := lifecycle.NewManager(bundle.store, orderMetrics, nil)

	reaperWorker := reaper.NewWorker(bundle.store,
		reaper.WithInterval(cfg.ReaperInterval),
		reaper.WithMaxAge(cfg.ReaperMaxAge),
		reaper.WithBatchSize(cfg.ReaperBatchSize),
		reaper.WithMetrics(orderMetrics),
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaperWorker.Run(workerCtx)
	}()

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, cfg.OutboxTopic)
		dlq := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)

		outboxWorker := outbox.NewWorker(bundle.store.Repos().Outbox, publisher,
			outbox.WithDLQPublisher(dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			outboxWorker.Run(workerCtx)
		}()
	} else {
		logger.Info("kafka is not configured, outbox worker is disabled")
	}

	build := version.Build()
	logger.WithField("build", build.String()).Info("starting service")
	healthHandler := healthcheck.NewHandler(build.Version)
	if bundle.pg != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", 2*time.Second, bundle.pg.Ping))
	}
	if bundle.redis != nil {
		redisClient := bundle.redis
		healthHandler.RegisterChecker("redis", healthcheck.NewPingChecker("redis", 2*time.Second, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Orders:  httpapi.NewOrderHandler(checkoutSvc, lifecycleMgr, cartService),
		Admin:   httpapi.NewAdminHandler(lifecycleMgr, reaperWorker),
		Webhook: httpapi.NewWebhookHandler(reconciler, nil),
		Health:  healthHandler,
	})

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	shutdown := func() {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		cancelWorkers()
		wg.Wait()
		closeKafka(kafkaProducer, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
