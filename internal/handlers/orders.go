package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/httpx"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

type draftRequest struct {
	cartRequest
	UserID    string `json:"userId"`
	PromoCode string `json:"promoCode"`
	Notes     string `json:"notes"`
}

type completeRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type paymentResponse struct {
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reused          bool   `json:"reused"`
}

// OrderHandlers exposes the order lifecycle over HTTP.
type OrderHandlers struct {
	orders    services.OrderService
	payGuards []func(http.Handler) http.Handler
}

type OrderHandlersOption func(*OrderHandlers)

// WithPaymentMiddlewares wraps only the :pay route, typically with the idempotency middleware.
func WithPaymentMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.payGuards = append(h.payGuards, mw...)
	}
}

func NewOrderHandlers(orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createDraft)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}", h.updateDraft)
	r.Delete("/{orderID}", h.deleteOrder)
	r.Post("/{orderID}:submit", h.submitOrder)
	r.With(h.payGuards...).Post("/{orderID}:pay", h.initiatePayment)
	r.Post("/{orderID}:complete", h.completeOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:fulfill", h.fulfillOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := customerFromContext(ctx)
	if userID == "" {
		userID = trimmed(r.URL.Query().Get("user_id"))
	}
	if userID == "" {
		writeBadRequest(ctx, w, "user_id or "+CustomerHeader+" is required")
		return
	}

	limit := defaultOrderPageSize
	if raw := trimmed(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			writeBadRequest(ctx, w, "page_size must be a positive integer")
			return
		}
		limit = min(size, maxOrderPageSize)
	}

	orders, err := h.orders.ListOrders(ctx, userID, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *OrderHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req draftRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	userID := customerFromContext(ctx)
	if userID == "" {
		userID = trimmed(req.UserID)
	}

	order, err := h.orders.SaveDraft(ctx, services.SaveDraftCommand{
		UserID:      userID,
		NailSets:    req.nailSets(),
		Fulfillment: req.fulfillment(),
		PromoCode:   trimmed(req.PromoCode),
		Notes:       req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) updateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	existing, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	order, err := h.orders.SaveDraft(ctx, services.SaveDraftCommand{
		OrderID:     existing.ID,
		UserID:      existing.UserID,
		NailSets:    req.nailSets(),
		Fulfillment: req.fulfillment(),
		PromoCode:   trimmed(req.PromoCode),
		Notes:       req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	if err := h.orders.Delete(r.Context(), order.ID); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	submitted, err := h.orders.Submit(r.Context(), order.ID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(submitted))
}

func (h *OrderHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	result, err := h.orders.InitiatePayment(r.Context(), services.InitiatePaymentCommand{OrderID: order.ID})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentResponse{
		OrderID:         result.OrderID,
		PaymentIntentID: result.PaymentIntentID,
		ClientSecret:    result.ClientSecret,
		Amount:          result.Amount,
		Currency:        result.Currency,
		Reused:          result.Reused,
	})
}

func (h *OrderHandlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	completed, err := h.orders.Complete(ctx, services.CompleteOrderCommand{
		OrderID:         order.ID,
		PaymentIntentID: trimmed(req.PaymentIntentID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(completed))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{OrderID: order.ID, Reason: req.Reason})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(cancelled))
}

// fulfillOrder is the studio-side handoff that moves a paid order to completed.
func (h *OrderHandlers) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if customerFromContext(ctx) != "" {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "fulfillment is a studio operation", http.StatusForbidden))
		return
	}
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	fulfilled, err := h.orders.MarkCompleted(ctx, order.ID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(fulfilled))
}

// loadVisibleOrder fetches the path order and answers 404 for another customer's order.
func (h *OrderHandlers) loadVisibleOrder(w http.ResponseWriter, r *http.Request) (services.Order, bool) {
	ctx := r.Context()
	orderID := trimmed(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeBadRequest(ctx, w, "order id is required")
		return services.Order{}, false
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Order{}, false
	}
	if !visibleTo(ctx, order.UserID) {
		writeServiceError(ctx, w, services.ErrOrderNotFound)
		return services.Order{}, false
	}
	return order, true
}
