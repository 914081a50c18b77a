package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/idempotency"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

func newOrderRouter(svc services.OrderService, opts ...OrderHandlersOption) http.Handler {
	handlers := NewOrderHandlers(svc, opts...)
	r := chi.NewRouter()
	r.Use(CustomerMiddleware)
	r.Route("/orders", handlers.Routes)
	return r
}

func sampleOrder(id, userID string, status domain.OrderStatus) services.Order {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return services.Order{
		ID:     id,
		UserID: userID,
		Status: status,
		NailSets: []domain.NailSet{{
			ID:       "set_1",
			ShapeID:  "almond",
			Quantity: 2,
			Sizes:    domain.SizeSpec{Mode: domain.SizeModeStandard, Values: map[string]string{"thumb": "3"}},
		}},
		Fulfillment: domain.FulfillmentSelection{Method: domain.FulfillmentPickup},
		Pricing: domain.PriceBreakdown{
			Currency: "USD",
			Subtotal: 5000,
			Total:    5000,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

const draftBody = `{"nailSets":[{"shapeId":"almond","quantity":2,"sizes":{"mode":"standard","values":{"thumb":"3"}}}],"fulfillment":{"method":"pickup"},"promoCode":" SPRING ","notes":"gold flakes"}`

func TestOrderHandlers_CreateDraftUsesCustomerHeader(t *testing.T) {
	var captured services.SaveDraftCommand
	svc := &stubOrderService{
		saveDraftFn: func(_ context.Context, cmd services.SaveDraftCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder("ord_1", cmd.UserID, domain.OrderStatusDraft), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(draftBody))
	req.Header.Set(CustomerHeader, "cust_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "cust_1" || captured.OrderID != "" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.PromoCode != "SPRING" || captured.Notes != "gold flakes" {
		t.Fatalf("expected trimmed promo and notes, got %+v", captured)
	}
	if len(captured.NailSets) != 1 || captured.NailSets[0].Quantity != 2 || captured.Fulfillment.Method != domain.FulfillmentPickup {
		t.Fatalf("unexpected cart contents %+v", captured)
	}
	if loc := rr.Header().Get("Location"); loc != "/orders/ord_1" {
		t.Fatalf("unexpected location %q", loc)
	}
	body := decodeBody(t, rr)
	if body["status"] != "draft" || body["userId"] != "cust_1" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestOrderHandlers_CreateDraftRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"nailSets":[],"color":"red"}`))
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlers_ForeignOrderIsHidden(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return sampleOrder("ord_1", "cust_owner", domain.OrderStatusDraft), nil
		},
		deleteFn: func(context.Context, string) error {
			t.Fatalf("delete must not be called for a foreign order")
			return nil
		},
	}
	router := newOrderRouter(svc)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/orders/ord_1"},
		{http.MethodDelete, "/orders/ord_1"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set(CustomerHeader, "cust_other")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestOrderHandlers_UpdateDraftKeepsOwner(t *testing.T) {
	var captured services.SaveDraftCommand
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return sampleOrder("ord_1", "cust_1", domain.OrderStatusDraft), nil
		},
		saveDraftFn: func(_ context.Context, cmd services.SaveDraftCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(cmd.OrderID, cmd.UserID, domain.OrderStatusDraft), nil
		},
	}
	req := httptest.NewRequest(http.MethodPut, "/orders/ord_1", strings.NewReader(draftBody))
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.UserID != "cust_1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestOrderHandlers_SubmitInvalidState(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return sampleOrder("ord_1", "cust_1", domain.OrderStatusPaid), nil
		},
		submitFn: func(context.Context, string) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: cannot submit order in status paid", services.ErrOrderInvalidState)
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1:submit", nil)
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "invalid_state" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestOrderHandlers_SubmitCapacityFull(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return sampleOrder("ord_1", "cust_1", domain.OrderStatusDraft), nil
		},
		submitFn: func(context.Context, string) (services.Order, error) {
			return services.Order{}, services.ErrCapacityFull
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1:submit", nil)
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "conflict" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestOrderHandlers_PayReplaysWithIdempotencyKey(t *testing.T) {
	calls := 0
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return sampleOrder("ord_1", "cust_1", domain.OrderStatusSubmitted), nil
		},
		payFn: func(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			calls++
			return services.PaymentInitiation{
				OrderID:         cmd.OrderID,
				PaymentIntentID: "pi_1",
				ClientSecret:    "pi_1_secret",
				Amount:          5000,
				Currency:        "USD",
			}, nil
		},
	}
	router := newOrderRouter(svc, WithPaymentMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore())))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders/ord_1:pay", nil)
		req.Header.Set(CustomerHeader, "cust_1")
		req.Header.Set("Idempotency-Key", "pay-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	body := decodeBody(t, first)
	if body["paymentIntentId"] != "pi_1" || body["clientSecret"] != "pi_1_secret" || body["amount"] != float64(5000) {
		t.Fatalf("unexpected payment payload %v", body)
	}

	second := send()
	if second.Code != http.StatusOK || second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replayed response, got %d %v", second.Code, second.Header())
	}
	if calls != 1 {
		t.Fatalf("expected a single payment initiation, got %d", calls)
	}
}

func TestOrderHandlers_PayRequiresIdempotencyKey(t *testing.T) {
	svc := &stubOrderService{
		payFn: func(context.Context, services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			t.Fatalf("payment must not start without a key")
			return services.PaymentInitiation{}, nil
		},
	}
	router := newOrderRouter(svc, WithPaymentMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore())))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/ord_1:pay", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlers_CompleteAndCancelPassArguments(t *testing.T) {
	var completed services.CompleteOrderCommand
	var cancelled services.CancelOrderCommand
	svc := &stubOrderService{
		getFn: func(_ context.Context, id string) (services.Order, error) {
			return sampleOrder(id, "cust_1", domain.OrderStatusPendingPayment), nil
		},
		completeFn: func(_ context.Context, cmd services.CompleteOrderCommand) (services.Order, error) {
			completed = cmd
			return sampleOrder(cmd.OrderID, "cust_1", domain.OrderStatusPaid), nil
		},
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			cancelled = cmd
			order := sampleOrder(cmd.OrderID, "cust_1", domain.OrderStatusCancelled)
			order.CancelReason = cmd.Reason
			return order, nil
		},
	}
	router := newOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/ord_1:complete", strings.NewReader(`{"paymentIntentId":" pi_9 "}`)))
	if rr.Code != http.StatusOK || completed.OrderID != "ord_1" || completed.PaymentIntentID != "pi_9" {
		t.Fatalf("complete: got %d %+v", rr.Code, completed)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/ord_2:cancel", strings.NewReader(`{"reason":"changed my mind"}`)))
	if rr.Code != http.StatusOK || cancelled.OrderID != "ord_2" || cancelled.Reason != "changed my mind" {
		t.Fatalf("cancel: got %d %+v", rr.Code, cancelled)
	}
	if body := decodeBody(t, rr); body["cancelReason"] != "changed my mind" {
		t.Fatalf("expected cancel reason in payload, got %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/ord_3:cancel", nil))
	if rr.Code != http.StatusOK || cancelled.OrderID != "ord_3" || cancelled.Reason != "" {
		t.Fatalf("cancel without body: got %d %+v", rr.Code, cancelled)
	}
}

func TestOrderHandlers_FulfillIsStudioOnly(t *testing.T) {
	marked := ""
	svc := &stubOrderService{
		getFn: func(_ context.Context, id string) (services.Order, error) {
			return sampleOrder(id, "cust_1", domain.OrderStatusPaid), nil
		},
		markFn: func(_ context.Context, id string) (services.Order, error) {
			marked = id
			return sampleOrder(id, "cust_1", domain.OrderStatusCompleted), nil
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1:fulfill", nil)
	req.Header.Set(CustomerHeader, "cust_1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden || marked != "" {
		t.Fatalf("expected 403 for customers, got %d (marked %q)", rr.Code, marked)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/ord_1:fulfill", nil))
	if rr.Code != http.StatusOK || marked != "ord_1" {
		t.Fatalf("expected studio fulfill to succeed, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["status"] != "completed" {
		t.Fatalf("unexpected status %v", body["status"])
	}
}

func TestOrderHandlers_List(t *testing.T) {
	var gotUser string
	var gotLimit int
	svc := &stubOrderService{
		listFn: func(_ context.Context, userID string, limit int) ([]services.Order, error) {
			gotUser, gotLimit = userID, limit
			return []services.Order{sampleOrder("ord_1", userID, domain.OrderStatusDraft)}, nil
		},
	}
	router := newOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a user, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders?user_id=cust_1&page_size=500", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotUser != "cust_1" || gotLimit != maxOrderPageSize {
		t.Fatalf("unexpected list arguments %q %d", gotUser, gotLimit)
	}
	items, _ := decodeBody(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %v", items)
	}

	req := httptest.NewRequest(http.MethodGet, "/orders?user_id=cust_2", nil)
	req.Header.Set(CustomerHeader, "cust_1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if gotUser != "cust_1" || gotLimit != defaultOrderPageSize {
		t.Fatalf("expected header identity to win, got %q %d", gotUser, gotLimit)
	}
}
