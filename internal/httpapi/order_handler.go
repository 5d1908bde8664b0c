package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	cartsvc "github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

// OrderHandler обслуживает покупательские маршруты: заказы, корзину, оплату.
type OrderHandler struct {
	checkout  *checkout.Orchestrator
	lifecycle *lifecycle.Manager
	cart      *cartsvc.Service
}

// NewOrderHandler создаёт handler покупательского API.
func NewOrderHandler(co *checkout.Orchestrator, lm *lifecycle.Manager, cart *cartsvc.Service) *OrderHandler {
	return &OrderHandler{checkout: co, lifecycle: lm, cart: cart}
}

// Register вешает маршруты на router.
func (h *OrderHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/fallback", h.createFallbackOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/timeline", h.getTimeline)
	r.Post("/orders/{id}/pay", h.beginPayment)
	r.Post("/orders/{id}/cancel", h.cancelOrder)

	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addCartItem)
	r.Delete("/cart/items/{productID}", h.removeCartItem)
}

type orderItemReq struct {
	ProductID     string `json:"product_id"`
	Qty           int32  `json:"qty"`
	PriceMinor    int64  `json:"price_minor"`
	DiscountMinor int64  `json:"discount_minor"`
}

type createOrderReq struct {
	ShippingAddress  json.RawMessage `json:"shipping_address"`
	Items            []orderItemReq  `json:"items"`
	TotalAmountMinor int64           `json:"total_amount_minor"`
	TaxMinor         int64           `json:"tax_minor"`
	ShippingFeeMinor int64           `json:"shipping_fee_minor"`
	PaymentMethod    string          `json:"payment_method"`
	Notes            string          `json:"notes"`
	TransactionID    string          `json:"transaction_id"`
	PaymentStatus    string          `json:"payment_status"`
}

type createOrderResp struct {
	OrderID         string `json:"order_id"`
	OrderNumber     string `json:"order_number"`
	Status          string `json:"status"`
	GrandTotalMinor int64  `json:"grand_total_minor"`
	Deduplicated    bool   `json:"deduplicated,omitempty"`
}

func toItemInputs(items []orderItemReq) []checkout.ItemInput {
	result := make([]checkout.ItemInput, 0, len(items))
	for _, item := range items {
		result = append(result, checkout.ItemInput{
			ProductID:     item.ProductID,
			Qty:           item.Qty,
			PriceMinor:    item.PriceMinor,
			DiscountMinor: item.DiscountMinor,
		})
	}
	return result
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createOrderReq
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.checkout.CreateOrder(r.Context(), checkout.CreateOrderInput{
		UserID:           user,
		ShippingAddress:  []byte(req.ShippingAddress),
		Items:            toItemInputs(req.Items),
		TotalAmountMinor: req.TotalAmountMinor,
		TaxMinor:         req.TaxMinor,
		ShippingFeeMinor: req.ShippingFeeMinor,
		PaymentMethod:    req.PaymentMethod,
		Notes:            req.Notes,
		TransactionID:    req.TransactionID,
		PaymentStatus:    domain.PaymentState(req.PaymentStatus),
	})
	if err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, "order created", createOrderResp{
		OrderID:         result.ID,
		OrderNumber:     result.OrderNumber,
		Status:          string(result.Status),
		GrandTotalMinor: result.GrandTotalMinor,
	})
}

func (h *OrderHandler) createFallbackOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createOrderReq
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.checkout.CreateFallbackOrder(r.Context(), checkout.FallbackOrderInput{
		UserID:           user,
		Items:            toItemInputs(req.Items),
		TotalAmountMinor: req.TotalAmountMinor,
		TaxMinor:         req.TaxMinor,
		ShippingFeeMinor: req.ShippingFeeMinor,
		PaymentMethod:    req.PaymentMethod,
		Notes:            req.Notes,
		TransactionID:    req.TransactionID,
		PaymentStatus:    domain.PaymentState(req.PaymentStatus),
	})
	if err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}

	code := http.StatusCreated
	message := "fallback order created"
	if result.Deduplicated {
		code = http.StatusOK
		message = "order already exists for transaction"
	}

	writeData(w, code, message, createOrderResp{
		OrderID:         result.ID,
		OrderNumber:     result.OrderNumber,
		Status:          string(result.Status),
		GrandTotalMinor: result.GrandTotalMinor,
		Deduplicated:    result.Deduplicated,
	})
}

type orderResp struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"order_number"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	TotalAmountMinor  int64           `json:"total_amount_minor"`
	TaxMinor          int64           `json:"tax_minor"`
	ShippingFeeMinor  int64           `json:"shipping_fee_minor"`
	GrandTotalMinor   int64           `json:"grand_total_minor"`
	ShippingAddress   json.RawMessage `json:"shipping_address,omitempty"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Items             []orderItemResp `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type orderItemResp struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	ProductSKU      string `json:"product_sku"`
	Qty             int32  `json:"qty"`
	PriceMinor      int64  `json:"price_minor"`
	DiscountMinor   int64  `json:"discount_minor,omitempty"`
	TotalPriceMinor int64  `json:"total_price_minor"`
}

func toOrderResp(order domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResp{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			ProductSKU:      item.ProductSKU,
			Qty:             item.Qty,
			PriceMinor:      item.PriceMinor,
			DiscountMinor:   item.DiscountMinor,
			TotalPriceMinor: item.TotalPriceMinor,
		})
	}

	return orderResp{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		PaymentMethod:     order.PaymentMethod,
		TotalAmountMinor:  order.TotalAmountMinor,
		TaxMinor:          order.TaxMinor,
		ShippingFeeMinor:  order.ShippingFeeMinor,
		GrandTotalMinor:   order.GrandTotalMinor,
		ShippingAddress:   json.RawMessage(order.ShippingAddress),
		TrackingNumber:    order.TrackingNumber,
		EstimatedDelivery: order.EstimatedDelivery,
		Notes:             order.Notes,
		Items:             items,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	orders, err := h.lifecycle.List(r.Context(), user, limit)
	if err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}

	result := make([]orderResp, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResp(order))
	}
	writeData(w, http.StatusOK, "", result)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	order, err := h.lifecycle.Get(r.Context(), chi.URLParam(r, "id"), user)
	if err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", toOrderResp(order))
}

type timelineResp struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

func (h *OrderHandler) getTimeline(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "id")
	if _, err := h.lifecycle.Get(r.Context(), orderID, user); err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}

	events, err := h.lifecycle.Timeline(r.Context(), orderID)
	if err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}

	result := make([]timelineResp, 0, len(events))
	for _, event := range events {
		result = append(result, timelineResp{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}
	writeData(w, http.StatusOK, "", result)
}

type beginPaymentResp struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

func (h *OrderHandler) beginPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "id")
	if _, err := h.lifecycle.Get(r.Context(), orderID, user); err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}

	tx, err := h.checkout.BeginPayment(r.Context(), orderID)
	if err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "payment transaction created", beginPaymentResp{
		Token:       tx.Token,
		RedirectURL: tx.RedirectURL,
	})
}

type cancelOrderReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req cancelOrderReq
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	if err := h.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), user, req.Reason); err != nil {
		logHandlerError("http-orders", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "order cancelled", nil)
}

type cartResp struct {
	ID              string         `json:"id"`
	TotalItems      int32          `json:"total_items"`
	TotalPriceMinor int64          `json:"total_price_minor"`
	Items           []cartItemResp `json:"items"`
}

type cartItemResp struct {
	ProductID       string `json:"product_id"`
	Qty             int32  `json:"qty"`
	PriceMinor      int64  `json:"price_minor"`
	TotalPriceMinor int64  `json:"total_price_minor"`
}

func (h *OrderHandler) getCart(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	cart, items, err := h.cart.GetByUser(r.Context(), user)
	if err != nil {
		logHandlerError("http-cart", r, err)
		writeError(w, err)
		return
	}

	result := cartResp{
		ID:              cart.ID,
		TotalItems:      cart.TotalItems,
		TotalPriceMinor: cart.TotalPriceMinor,
		Items:           make([]cartItemResp, 0, len(items)),
	}
	for _, item := range items {
		result.Items = append(result.Items, cartItemResp{
			ProductID:       item.ProductID,
			Qty:             item.Qty,
			PriceMinor:      item.PriceMinor,
			TotalPriceMinor: item.TotalPriceMinor,
		})
	}
	writeData(w, http.StatusOK, "", result)
}

type addCartItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

func (h *OrderHandler) addCartItem(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req addCartItemReq
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.cart.AddItem(r.Context(), user, req.ProductID, req.Qty); err != nil {
		logHandlerError("http-cart", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "item added to cart", nil)
}

func (h *OrderHandler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.cart.RemoveItem(r.Context(), user, chi.URLParam(r, "productID")); err != nil {
		logHandlerError("http-cart", r, err)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "item removed from cart", nil)
}
