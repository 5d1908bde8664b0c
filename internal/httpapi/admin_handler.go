package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/reaper"
)

// AdminHandler обслуживает служебные мутации заказов и ручной запуск reaper.
type AdminHandler struct {
	lifecycle *lifecycle.Manager
	reaper    *reaper.Worker
}

// NewAdminHandler создаёт handler административного API.
func NewAdminHandler(lm *lifecycle.Manager, rw *reaper.Worker) *AdminHandler {
	return &AdminHandler{lifecycle: lm, reaper: rw}
}

// Register вешает маршруты на router.
func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Patch("/orders/{id}/tracking", h.setTracking)
	r.Patch("/orders/{id}/payment-status", h.updatePaymentStatus)
	r.Post("/orders/{id}/refund", h.refund)
	r.Post("/reaper/run", h.runReaper)
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.lifecycle.Get(r.Context(), chi.URLParam(r, "id"), "")
	if err != nil {
		logHandlerError("http-admin", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", toOrderResp(order))
}

type updateStatusReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.lifecycle.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.OrderStatus(req.Status), req.Note)
	if err != nil {
		logHandlerError("http-admin", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "order status updated", nil)
}

type setTrackingReq struct {
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

func (h *AdminHandler) setTracking(w http.ResponseWriter, r *http.Request) {
	var req setTrackingReq
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.lifecycle.SetTracking(r.Context(), chi.URLParam(r, "id"), req.TrackingNumber, req.EstimatedDelivery)
	if err != nil {
		logHandlerError("http-admin", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "tracking assigned", nil)
}

type updatePaymentStatusReq struct {
	PaymentStatus string `json:"payment_status"`
}

func (h *AdminHandler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentStatusReq
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.lifecycle.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), domain.PaymentState(req.PaymentStatus))
	if err != nil {
		logHandlerError("http-admin", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "payment status updated", nil)
}

type refundReq struct {
	AmountMinor int64  `json:"amount_minor"`
	Reason      string `json:"reason"`
}

func (h *AdminHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	err := h.lifecycle.Refund(r.Context(), chi.URLParam(r, "id"), req.AmountMinor, req.Reason)
	if err != nil {
		logHandlerError("http-admin", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "order refunded", nil)
}

type reaperRunResp struct {
	Expired int `json:"expired"`
}

func (h *AdminHandler) runReaper(w http.ResponseWriter, r *http.Request) {
	expired, err := h.reaper.RunOnce(r.Context())
	if err != nil {
		logHandlerError("http-admin", r, err)
		if errors.Is(err, reaper.ErrSweepInProgress) {
			writeJSON(w, http.StatusConflict, envelope{Success: false, Error: err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "reaper sweep completed", reaperRunResp{Expired: expired})
}
