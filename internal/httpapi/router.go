package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/health"
)

// RouterDeps — зависимости HTTP-маршрутизатора.
type RouterDeps struct {
	Orders  *OrderHandler
	Admin   *AdminHandler
	Webhook *WebhookHandler
	Health  *health.Handler
}

// NewRouter собирает chi-router со всеми маршрутами API.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", health.LivenessHandler)
	if deps.Health != nil {
		r.Get("/health", deps.Health.ServeHTTP)
		r.Get("/readyz", deps.Health.ReadinessHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Orders != nil {
			deps.Orders.Register(r)
		}
		if deps.Webhook != nil {
			r.Post("/payments/webhook", deps.Webhook.ServeHTTP)
		}
		if deps.Admin != nil {
			r.Route("/admin", func(r chi.Router) {
				deps.Admin.Register(r)
			})
		}
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"component":  "http",
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed_ms": time.Since(start).Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("request completed")
	})
}
