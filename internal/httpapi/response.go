package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// envelope — единый формат ответа API.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, message string, data interface{}) {
	writeJSON(w, code, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), envelope{Success: false, Error: err.Error()})
}

// statusFor переводит доменные категории ошибок в HTTP-статусы.
func statusFor(err error) int {
	switch {
	// Конфликт состояния (недопустимый переход, неотменяемый заказ) по
	// контракту API отдаётся как 400, а не 409.
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid json body"})
		return false
	}
	return true
}

// userID извлекает идентификатор покупателя из заголовка X-User-ID.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "X-User-ID header is required"})
		return "", false
	}
	return id, true
}

func logHandlerError(component string, r *http.Request, err error) {
	log.WithError(err).WithFields(log.Fields{
		"component": component,
		"method":    r.Method,
		"path":      r.URL.Path,
	}).Warn("request failed")
}
