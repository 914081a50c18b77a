package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/payments"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/httpx"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/observability"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

const (
	stripeSignatureHeader  = "Stripe-Signature"
	maxWebhookPayloadBytes = 512 * 1024
)

// WebhookParser verifies and decodes provider webhooks.
type WebhookParser interface {
	ParseWebhook(providerKey string, payload []byte, signature string) (payments.WebhookEvent, error)
}

// WebhookHandlers turns payment provider notifications into order transitions.
type WebhookHandlers struct {
	parser WebhookParser
	orders services.OrderService
}

func NewWebhookHandlers(parser WebhookParser, orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{parser: parser, orders: orders}
}

func (h *WebhookHandlers) Routes(r chi.Router) {
	r.Post("/stripe", h.stripe)
}

// stripe acknowledges every verified event it cannot act on so the provider stops retrying, and
// answers 5xx only when a retry could succeed.
func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookPayloadBytes+1))
	if err != nil {
		writeBadRequest(ctx, w, "unable to read webhook payload")
		return
	}
	if len(payload) > maxWebhookPayloadBytes {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload too large", http.StatusRequestEntityTooLarge))
		return
	}

	event, err := h.parser.ParseWebhook("stripe", payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		logger.Warn("webhook parse failed", zap.Error(err))
		writeBadRequest(ctx, w, "invalid webhook payload")
		return
	}

	fields := []zap.Field{
		zap.String("eventId", event.ID),
		zap.String("eventType", event.RawType),
		zap.String("paymentIntentId", event.IntentID),
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		order, err := h.orders.CompleteByPaymentIntent(ctx, services.ConfirmPaymentCommand{
			PaymentIntentID: event.IntentID,
			Amount:          event.Amount,
		})
		if err != nil {
			switch kind := services.ErrorKind(err); {
			case errors.Is(err, services.ErrPaymentAmountMismatch), errors.Is(err, services.ErrPaymentIntentMismatch):
				logger.Error("webhook payment rejected", append(fields, zap.Int64("amount", event.Amount), zap.Error(err))...)
			case kind == services.ErrNotFound, kind == services.ErrState, kind == services.ErrValidation:
				logger.Warn("webhook payment not applied", append(fields, zap.Error(err))...)
			default:
				logger.Error("webhook payment completion failed", append(fields, zap.Error(err))...)
				writeServiceError(ctx, w, err)
				return
			}
			break
		}
		logger.Info("webhook payment applied", append(fields, zap.String("orderId", order.ID), zap.String("status", string(order.Status)))...)
	case payments.EventPaymentFailed, payments.EventPaymentCanceled:
		// The order stays pending_payment so the customer can retry with the same intent.
		logger.Info("webhook payment not completed", fields...)
	default:
		logger.Debug("webhook event ignored", fields...)
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
