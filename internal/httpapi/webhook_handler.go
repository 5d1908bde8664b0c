package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/reconcile"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler принимает уведомления платежного шлюза.
//
// Контракт шлюза: ответ всегда 200, иначе провайдер бесконечно ретраит
// доставку. Ошибки обработки закрываются внутри и уходят только в лог.
type WebhookHandler struct {
	reconciler *reconcile.Reconciler
	logger     *log.Entry
}

// NewWebhookHandler создаёт handler webhook-эндпоинта.
func NewWebhookHandler(rc *reconcile.Reconciler, logger *log.Entry) *WebhookHandler {
	if logger == nil {
		logger = log.WithField("component", "http-webhook")
	}
	return &WebhookHandler{reconciler: rc, logger: logger}
}

// ServeHTTP обрабатывает POST /api/v1/payments/webhook.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.WithError(err).Warn("failed to read webhook body")
		writeJSON(w, http.StatusOK, envelope{Success: false})
		return
	}

	var n domain.GatewayNotification
	if err := json.Unmarshal(body, &n); err != nil {
		h.logger.WithError(err).Warn("failed to decode webhook payload")
		writeJSON(w, http.StatusOK, envelope{Success: false})
		return
	}
	n.Raw = body

	// Всегда 200: неуспех обработки отражается только флагом success,
	// чтобы шлюз не ретраил доставку бесконечно.
	ok := true
	if err := h.reconciler.HandleNotification(r.Context(), n); err != nil {
		h.logger.WithError(err).WithFields(log.Fields{
			"order_number":   n.OrderNumber,
			"transaction_id": n.TransactionID,
		}).Error("webhook reconciliation failed")
		ok = false
	}

	writeJSON(w, http.StatusOK, envelope{Success: ok})
}
