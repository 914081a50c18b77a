// Package payments adapts payment service providers to the order lifecycle. Amounts are integer
// minor units throughout.
package payments

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Metadata keys stamped on every intent so a webhook can be traced back to its order.
const (
	MetadataOrderID    = "order_id"
	MetadataCustomerID = "user_id"
)

var (
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	ErrInvalidSignature    = errors.New("payments: invalid webhook signature")
	ErrIntentNotFound      = errors.New("payments: payment intent not found")
)

type IntentRequest struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
	// IdempotencyKey is forwarded to the provider so a retried create returns the same intent.
	IdempotencyKey string
}

// Intent is the provider's payment intent. ClientSecret is handed to the storefront to confirm
// payment client side and must never be logged.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       Status
	Metadata     map[string]string
}

// OrderID returns the order the intent was created for, if stamped.
func (i Intent) OrderID() string { return i.Metadata[MetadataOrderID] }

type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventPaymentCanceled  EventType = "payment.canceled"
	// EventIgnored covers provider events the order lifecycle has no use for.
	EventIgnored EventType = "ignored"
)

// WebhookEvent is a signature-verified provider notification.
type WebhookEvent struct {
	ID        string
	Provider  string
	Type      EventType
	RawType   string
	IntentID  string
	Amount    int64
	Currency  string
	Metadata  map[string]string
	CreatedAt time.Time
}

func (e WebhookEvent) OrderID() string { return e.Metadata[MetadataOrderID] }

// Provider is implemented by each PSP adapter.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, intentID string) (Intent, error)
	CancelIntent(ctx context.Context, intentID string) (Intent, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
