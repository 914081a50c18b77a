package services

import (
	"context"
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	NailSet              = domain.NailSet
	FulfillmentSelection = domain.FulfillmentSelection
	PriceBreakdown       = domain.PriceBreakdown
	LineItem             = domain.LineItem
	PromoCode            = domain.PromoCode
	PromoUsage           = domain.PromoUsage
	PromoValidation      = domain.PromoValidation
	CapacityStatus       = domain.CapacityStatus
	ProductionJob        = domain.ProductionJob
	Catalog              = domain.Catalog
	SystemHealthReport   = domain.SystemHealthReport
)

// PricingService prices carts against the current catalog.
type PricingService interface {
	Quote(ctx context.Context, input PricingInput) (PriceBreakdown, error)
}

// PromotionService validates promo codes and records their consumption.
type PromotionService interface {
	ValidatePromotion(ctx context.Context, cmd ValidatePromotionCommand) (PromoValidation, error)
	ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (PromotionApplication, error)
	GetPromotion(ctx context.Context, code string) (PromoCode, error)
}

// CapacityService gates order submissions against the weekly studio capacity.
type CapacityService interface {
	CheckAvailability(ctx context.Context, reference time.Time) (CapacityStatus, error)
	CheckAndReserve(ctx context.Context, reference time.Time) (CapacityStatus, error)
	SetWeeklyCapacity(ctx context.Context, reference time.Time, capacity int) (CapacityStatus, error)
	WeekStart(reference time.Time) time.Time
}

// OrderService owns the order lifecycle from draft to completion.
type OrderService interface {
	SaveDraft(ctx context.Context, cmd SaveDraftCommand) (Order, error)
	Submit(ctx context.Context, orderID string) (Order, error)
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error)
	Complete(ctx context.Context, cmd CompleteOrderCommand) (Order, error)
	CompleteByPaymentIntent(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Delete(ctx context.Context, orderID string) error
	MarkCompleted(ctx context.Context, orderID string) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]Order, error)
}

// SystemService reports dependency health for readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PricingInput carries everything needed to price an order.
type PricingInput struct {
	NailSets      []NailSet
	Fulfillment   FulfillmentSelection
	Discount      *DiscountInput
	ReferenceDate time.Time
}

// DiscountInput is a discount amount that was already validated by the promotion service.
type DiscountInput struct {
	Code        string
	Description string
	Amount      int64
}

// ValidatePromotionCommand validates a code against a cart snapshot.
type ValidatePromotionCommand struct {
	Code        string
	UserID      string
	NailSets    []NailSet
	Fulfillment FulfillmentSelection
}

// ApplyPromotionCommand consumes one use of a code for an order.
type ApplyPromotionCommand struct {
	Code        string
	UserID      string
	OrderID     string
	NailSets    []NailSet
	Fulfillment FulfillmentSelection
}

// PromotionApplication is the result of a successful apply.
type PromotionApplication struct {
	Validation PromoValidation
	Usage      PromoUsage
}

// SaveDraftCommand creates a new draft (OrderID empty) or replaces an existing draft's contents.
type SaveDraftCommand struct {
	OrderID     string
	UserID      string
	NailSets    []NailSet
	Fulfillment FulfillmentSelection
	PromoCode   string
	Notes       string
}

// InitiatePaymentCommand requests a payment intent for an order.
type InitiatePaymentCommand struct {
	OrderID string
}

// PaymentInitiation is returned to the client to confirm payment.
type PaymentInitiation struct {
	OrderID         string
	PaymentIntentID string
	ClientSecret    string
	Amount          int64
	Currency        string
	Reused          bool
}

// CompleteOrderCommand marks an order paid. PaymentIntentID is optional.
type CompleteOrderCommand struct {
	OrderID         string
	PaymentIntentID string
}

// ConfirmPaymentCommand applies a processor-verified payment to the order that owns the intent.
// Amount is in minor units as reported by the processor.
type ConfirmPaymentCommand struct {
	PaymentIntentID string
	Amount          int64
}

// CancelOrderCommand cancels an unpaid order.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
}
