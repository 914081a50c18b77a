package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/payments"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

type stubWebhookParser struct {
	event     payments.WebhookEvent
	err       error
	signature string
}

func (s *stubWebhookParser) ParseWebhook(provider string, payload []byte, signature string) (payments.WebhookEvent, error) {
	s.signature = signature
	if s.err != nil {
		return payments.WebhookEvent{}, s.err
	}
	return s.event, nil
}

func postWebhook(t *testing.T, parser WebhookParser, orders services.OrderService) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/webhooks", NewWebhookHandlers(parser, orders).Routes)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set(stripeSignatureHeader, "t=1,v1=abc")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestWebhook_SucceededCompletesOrder(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{ID: "evt_1", Type: payments.EventPaymentSucceeded, IntentID: "pi_1", Amount: 4500}}
	var completed services.ConfirmPaymentCommand
	orders := &stubOrderService{
		completeByFn: func(_ context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
			completed = cmd
			return sampleOrder("ord_1", "cust_1", domain.OrderStatusPaid), nil
		},
	}
	rr := postWebhook(t, parser, orders)
	if rr.Code != http.StatusOK || completed.PaymentIntentID != "pi_1" || completed.Amount != 4500 {
		t.Fatalf("expected completion for pi_1 at 4500, got %d %+v", rr.Code, completed)
	}
	if parser.signature != "t=1,v1=abc" {
		t.Fatalf("expected signature header to be forwarded, got %q", parser.signature)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	parser := &stubWebhookParser{err: payments.ErrInvalidSignature}
	rr := postWebhook(t, parser, &stubOrderService{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "invalid_signature" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestWebhook_UnknownIntentIsAcknowledged(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{Type: payments.EventPaymentSucceeded, IntentID: "pi_unknown"}}
	orders := &stubOrderService{
		completeByFn: func(context.Context, services.ConfirmPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	if rr := postWebhook(t, parser, orders); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", rr.Code)
	}
}

func TestWebhook_AmountMismatchIsAcknowledged(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{Type: payments.EventPaymentSucceeded, IntentID: "pi_1", Amount: 100}}
	orders := &stubOrderService{
		completeByFn: func(context.Context, services.ConfirmPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrPaymentAmountMismatch
		},
	}
	if rr := postWebhook(t, parser, orders); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, a retry cannot fix the amount, got %d", rr.Code)
	}
}

func TestWebhook_UpstreamFailureAsksForRetry(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{Type: payments.EventPaymentSucceeded, IntentID: "pi_1"}}
	orders := &stubOrderService{
		completeByFn: func(context.Context, services.ConfirmPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderUnavailable
		},
	}
	if rr := postWebhook(t, parser, orders); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 so the provider retries, got %d", rr.Code)
	}
}

func TestWebhook_FailedAndIgnoredEvents(t *testing.T) {
	orders := &stubOrderService{
		completeByFn: func(context.Context, services.ConfirmPaymentCommand) (services.Order, error) {
			t.Fatalf("non-success events must not complete orders")
			return services.Order{}, nil
		},
	}
	for _, eventType := range []payments.EventType{payments.EventPaymentFailed, payments.EventPaymentCanceled, payments.EventIgnored} {
		parser := &stubWebhookParser{event: payments.WebhookEvent{Type: eventType, IntentID: "pi_1"}}
		if rr := postWebhook(t, parser, orders); rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", eventType, rr.Code)
		}
	}
}

func TestWebhook_MalformedPayload(t *testing.T) {
	parser := &stubWebhookParser{err: errors.New("payments: decode event: unexpected end of JSON input")}
	if rr := postWebhook(t, parser, &stubOrderService{}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
