package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/payments"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

const (
	orderIDPrefix         = "ord_"
	nailSetIDPrefix       = "set_"
	productionJobIDPrefix = "job_"

	defaultOrderListLimit = 20
	maxOrderListLimit     = 100

	orderEventCreated          = "order.created"
	orderEventUpdated          = "order.updated"
	orderEventSubmitted        = "order.submitted"
	orderEventPaymentRequested = "order.payment_requested"
	orderEventPaid             = "order.paid"
	orderEventCompleted        = "order.completed"
	orderEventCancelled        = "order.cancelled"
	orderEventDeleted          = "order.deleted"
	productionEventJobCreated  = "production.job.created"
)

var (
	// ErrOrderInvalidInput signals malformed order input such as missing design details.
	ErrOrderInvalidInput = newKindError(ErrValidation, "order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = newKindError(ErrNotFound, "order: not found")
	// ErrOrderInvalidState indicates the operation is not allowed in the order's current status.
	ErrOrderInvalidState = newKindError(ErrState, "order: invalid state")
	// ErrOrderConflict indicates a concurrent modification of the order.
	ErrOrderConflict = newKindError(ErrConflict, "order: concurrent modification")
	// ErrPaymentIntentMismatch indicates the supplied payment intent differs from the stored one.
	ErrPaymentIntentMismatch = newKindError(ErrConflict, "order: payment intent mismatch")
	// ErrOrderPaymentAmountChanged indicates an intent exists for an amount other than the current total.
	ErrOrderPaymentAmountChanged = newKindError(ErrConflict, "order: payment already initiated for a different amount")
	// ErrPaymentAmountMismatch indicates the processor confirmed an amount other than the one the
	// order requested.
	ErrPaymentAmountMismatch = newKindError(ErrConflict, "order: confirmed payment amount mismatch")
	// ErrOrderPaymentIncomplete indicates the processor has not confirmed the payment yet.
	ErrOrderPaymentIncomplete = newKindError(ErrState, "order: payment not confirmed")
	// ErrOrderPaymentUnavailable wraps payment processor failures.
	ErrOrderPaymentUnavailable = newKindError(ErrUpstream, "order: payment processor unavailable")
	// ErrOrderUnavailable wraps persistence outages.
	ErrOrderUnavailable = newKindError(ErrUpstream, "order: repository unavailable")
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusDraft: {
		domain.OrderStatusSubmitted,
		domain.OrderStatusPendingPayment,
		domain.OrderStatusPaid,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusSubmitted: {
		domain.OrderStatusDraft,
		domain.OrderStatusPendingPayment,
		domain.OrderStatusPaid,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusPendingPayment: {
		domain.OrderStatusPaid,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusPaid: {
		domain.OrderStatusCompleted,
	},
}

var plainTextPolicy = bluemonday.StrictPolicy()

// PaymentProcessor is the subset of the payments manager used by the order lifecycle.
type PaymentProcessor interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	GetIntent(ctx context.Context, paymentCtx payments.PaymentContext, intentID string) (payments.Intent, error)
	CancelIntent(ctx context.Context, paymentCtx payments.PaymentContext, intentID string) (payments.Intent, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Jobs        repositories.ProductionJobRepository
	Pricing     PricingService
	Promotions  PromotionService
	Capacity    CapacityService
	Payments    PaymentProcessor
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	jobs       repositories.ProductionJobRepository
	pricing    PricingService
	promotions PromotionService
	capacity   CapacityService
	payments   PaymentProcessor
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Jobs == nil {
		return nil, errors.New("order service: production job repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing service is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("order service: promotion service is required")
	}
	if deps.Capacity == nil {
		return nil, errors.New("order service: capacity service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment processor is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		jobs:       deps.Jobs,
		pricing:    deps.Pricing,
		promotions: deps.Promotions,
		capacity:   deps.Capacity,
		payments:   deps.Payments,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// SaveDraft creates a draft when cmd.OrderID is empty, otherwise replaces the nail sets and
// fulfillment of an unpaid order and re-prices it. A submitted order returns to draft.
func (s *orderService) SaveDraft(ctx context.Context, cmd SaveDraftCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	sets, err := s.normalizeNailSets(cmd.NailSets)
	if err != nil {
		return Order{}, err
	}
	fulfillment, err := normalizeFulfillment(cmd.Fulfillment)
	if err != nil {
		return Order{}, err
	}
	promoCode := normalizePromotionCode(cmd.PromoCode)
	notes := sanitizeText(cmd.Notes)
	now := s.now()

	if orderID := strings.TrimSpace(cmd.OrderID); orderID != "" {
		return s.updateDraft(ctx, orderID, userID, sets, fulfillment, promoCode, notes, now)
	}

	status, err := s.capacity.CheckAvailability(ctx, now)
	if err != nil {
		return Order{}, err
	}
	if !status.Available {
		return Order{}, fmt.Errorf("%w: no availability for the week of %s", ErrCapacityFull, status.WeekStart.Format(time.DateOnly))
	}

	breakdown, promoID, err := s.priceOrder(ctx, userID, sets, fulfillment, promoCode, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:          orderIDPrefix + s.newID(),
		UserID:      userID,
		Status:      domain.OrderStatusDraft,
		NailSets:    sets,
		Fulfillment: fulfillment,
		Pricing:     breakdown,
		PromoCode:   promoCode,
		PromoCodeID: promoID,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":    order.Pricing.Total,
			"currency": order.Pricing.Currency,
			"sets":     len(order.NailSets),
		},
	})
	return order, nil
}

func (s *orderService) updateDraft(ctx context.Context, orderID, userID string, sets []NailSet, fulfillment FulfillmentSelection, promoCode, notes string, now time.Time) (Order, error) {
	existing, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if existing.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	if existing.Status != domain.OrderStatusDraft && existing.Status != domain.OrderStatusSubmitted {
		return Order{}, fmt.Errorf("%w: cannot edit order in status %s", ErrOrderInvalidState, existing.Status)
	}

	breakdown, promoID, err := s.priceOrder(ctx, userID, sets, fulfillment, promoCode, now)
	if err != nil {
		return Order{}, err
	}

	expected := existing.Status
	updated := existing
	updated.Status = domain.OrderStatusDraft
	updated.NailSets = sets
	updated.Fulfillment = fulfillment
	updated.Pricing = breakdown
	updated.PromoCode = promoCode
	updated.PromoCodeID = promoID
	updated.Notes = notes
	updated.SubmittedAt = nil
	updated.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.ReplaceNailSets(txCtx, orderID, sets); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, updated, expected); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventUpdated,
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		PreviousStatus: string(expected),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     now,
		Metadata:       map[string]any{"total": updated.Pricing.Total},
	})
	return updated, nil
}

// Submit moves a draft to submitted and reserves weekly capacity once per order.
func (s *orderService) Submit(ctx context.Context, orderID string) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusSubmitted {
		return order, nil
	}
	if !canTransition(order.Status, domain.OrderStatusSubmitted) {
		return Order{}, fmt.Errorf("%w: cannot submit order in status %s", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	expected := order.Status
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.reserveCapacity(txCtx, &order, now); err != nil {
			return err
		}
		order.Status = domain.OrderStatusSubmitted
		order.SubmittedAt = valuePtr(now)
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order, expected); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventSubmitted,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(expected),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
	})
	return order, nil
}

// InitiatePayment creates (or reuses) the payment intent for the order total.
func (s *orderService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return PaymentInitiation{}, err
	}
	switch order.Status {
	case domain.OrderStatusDraft, domain.OrderStatusSubmitted, domain.OrderStatusPendingPayment:
	default:
		return PaymentInitiation{}, fmt.Errorf("%w: cannot pay order in status %s", ErrOrderInvalidState, order.Status)
	}
	paymentCtx := payments.PaymentContext{Currency: order.Pricing.Currency}

	if order.PaymentIntentID != nil {
		if order.PaymentAmount != order.Pricing.Total {
			return PaymentInitiation{}, fmt.Errorf("%w: intent for %d, total is %d", ErrOrderPaymentAmountChanged, order.PaymentAmount, order.Pricing.Total)
		}
		intent, err := s.payments.GetIntent(ctx, paymentCtx, *order.PaymentIntentID)
		if err != nil {
			return PaymentInitiation{}, fmt.Errorf("%w: %v", ErrOrderPaymentUnavailable, err)
		}
		return PaymentInitiation{
			OrderID:         order.ID,
			PaymentIntentID: intent.ID,
			ClientSecret:    intent.ClientSecret,
			Amount:          order.PaymentAmount,
			Currency:        order.Pricing.Currency,
			Reused:          true,
		}, nil
	}
	if order.Pricing.Total <= 0 {
		return PaymentInitiation{}, fmt.Errorf("%w: order total is zero, complete it without payment", ErrOrderInvalidState)
	}

	now := s.now()
	if err := s.prepareForPayment(ctx, &order, now); err != nil {
		return PaymentInitiation{}, err
	}
	if order.Pricing.Total <= 0 {
		return PaymentInitiation{}, fmt.Errorf("%w: order total is zero, complete it without payment", ErrOrderInvalidState)
	}

	amount := order.Pricing.Total
	intent, err := s.payments.CreateIntent(ctx, paymentCtx, payments.IntentRequest{
		Amount:      amount,
		Currency:    order.Pricing.Currency,
		Description: "Nail set order " + order.ID,
		Metadata: map[string]string{
			payments.MetadataOrderID:    order.ID,
			payments.MetadataCustomerID: order.UserID,
		},
		IdempotencyKey: fmt.Sprintf("order:%s:%d", order.ID, amount),
	})
	if err != nil {
		return PaymentInitiation{}, fmt.Errorf("%w: %v", ErrOrderPaymentUnavailable, err)
	}

	expected := order.Status
	order.PaymentIntentID = valuePtr(intent.ID)
	order.PaymentAmount = amount
	order.Status = domain.OrderStatusPendingPayment
	order.PaymentRequestedAt = valuePtr(now)
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order, expected); err != nil {
		return PaymentInitiation{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentRequested,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(expected),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
		Metadata: map[string]any{
			"paymentIntentId": intent.ID,
			"amount":          amount,
		},
	})
	return PaymentInitiation{
		OrderID:         order.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          amount,
		Currency:        order.Pricing.Currency,
	}, nil
}

// prepareForPayment reserves capacity and consumes the promo code in one transaction, committed
// before any payment side effect. A failure leaves neither behind.
func (s *orderService) prepareForPayment(ctx context.Context, order *Order, now time.Time) error {
	needsReservation := order.CapacityWeek == nil
	applyPromo := order.PromoCode != "" && order.PromoUsageID == ""
	if !needsReservation && !applyPromo {
		return nil
	}

	return s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.reserveCapacity(txCtx, order, now); err != nil {
			return err
		}
		if applyPromo {
			if err := s.applyPromotion(txCtx, order, now); err != nil {
				return err
			}
		}
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, *order, order.Status); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
}

func (s *orderService) applyPromotion(ctx context.Context, order *Order, now time.Time) error {
	app, err := s.promotions.ApplyPromotion(ctx, ApplyPromotionCommand{
		Code:        order.PromoCode,
		UserID:      order.UserID,
		OrderID:     order.ID,
		NailSets:    order.NailSets,
		Fulfillment: order.Fulfillment,
	})
	if err != nil {
		return err
	}
	order.PromoCodeID = app.Usage.PromoCodeID
	order.PromoUsageID = app.Usage.ID
	if app.Validation.Discount == order.Pricing.Discount {
		return nil
	}

	s.logger(ctx, "order.promo.repriced", map[string]any{
		"order":       order.ID,
		"oldDiscount": order.Pricing.Discount,
		"newDiscount": app.Validation.Discount,
	})
	breakdown, err := s.pricing.Quote(ctx, PricingInput{
		NailSets:    order.NailSets,
		Fulfillment: order.Fulfillment,
		Discount: &DiscountInput{
			Code:        app.Validation.Code,
			Description: app.Validation.Description,
			Amount:      app.Validation.Discount,
		},
		ReferenceDate: now,
	})
	if err != nil {
		return err
	}
	order.Pricing = breakdown
	return nil
}

// Complete marks the order paid. Repeated calls return the stored order without side effects.
func (s *orderService) Complete(ctx context.Context, cmd CompleteOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	return s.complete(ctx, order, paymentConfirmation{
		intentID: strings.TrimSpace(cmd.PaymentIntentID),
		source:   "api",
	})
}

// CompleteByPaymentIntent is the webhook entry point; it shares Complete's transition logic. The
// event was verified by the caller, so its amount stands in for a processor lookup.
func (s *orderService) CompleteByPaymentIntent(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	intentID := strings.TrimSpace(cmd.PaymentIntentID)
	if intentID == "" {
		return Order{}, fmt.Errorf("%w: payment intent id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return s.complete(ctx, order, paymentConfirmation{
		intentID:  intentID,
		source:    "webhook",
		confirmed: true,
		amount:    cmd.Amount,
	})
}

// paymentConfirmation carries what the caller knows about the payment. Unconfirmed callers are
// checked against the processor before the order is marked paid.
type paymentConfirmation struct {
	intentID  string
	source    string
	confirmed bool
	amount    int64
}

func (s *orderService) complete(ctx context.Context, order Order, conf paymentConfirmation) (Order, error) {
	intentID, source := conf.intentID, conf.source
	if intentID != "" {
		if order.PaymentIntentID == nil || *order.PaymentIntentID != intentID {
			s.logger(ctx, "order.payment.intent_mismatch", map[string]any{
				"order":    order.ID,
				"supplied": intentID,
				"source":   source,
			})
			return Order{}, ErrPaymentIntentMismatch
		}
	}

	switch order.Status {
	case domain.OrderStatusPaid, domain.OrderStatusCompleted:
		return s.withJobs(ctx, order)
	case domain.OrderStatusPendingPayment:
		if err := s.confirmPayment(ctx, order, conf); err != nil {
			return Order{}, err
		}
	case domain.OrderStatusDraft, domain.OrderStatusSubmitted:
		if order.PaymentIntentID != nil || order.Pricing.Total > 0 {
			return Order{}, fmt.Errorf("%w: payment is required before completion", ErrOrderInvalidState)
		}
	default:
		return Order{}, fmt.Errorf("%w: cannot complete order in status %s", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	freeOrder := order.Status != domain.OrderStatusPendingPayment
	expected := order.Status
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if freeOrder {
			if err := s.reserveCapacity(txCtx, &order, now); err != nil {
				return err
			}
		}
		if freeOrder && order.PromoCode != "" && order.PromoUsageID == "" {
			if err := s.applyPromotion(txCtx, &order, now); err != nil {
				return err
			}
			if order.Pricing.Total > 0 {
				return fmt.Errorf("%w: payment is required before completion", ErrOrderInvalidState)
			}
		}

		due := order.Pricing.EstimatedCompletionDate
		if due.IsZero() {
			due = now.AddDate(0, 0, order.Pricing.EstimatedCompletionDays)
		}
		order.Status = domain.OrderStatusPaid
		order.PaidAt = valuePtr(now)
		order.EstimatedFulfillmentDate = valuePtr(due)
		order.UpdatedAt = now
		order.ProductionJobs = s.buildProductionJobs(order, due, now)

		if err := s.orders.Update(txCtx, order, expected); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.jobs.InsertBatch(txCtx, order.ProductionJobs); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderConflict) {
			current, loadErr := s.loadOrder(ctx, order.ID)
			if loadErr == nil && (current.Status == domain.OrderStatusPaid || current.Status == domain.OrderStatusCompleted) {
				s.logger(ctx, "order.complete.race_lost", map[string]any{"order": order.ID, "source": source})
				return s.withJobs(ctx, current)
			}
		}
		return Order{}, err
	}

	s.logger(ctx, "order.paid", map[string]any{
		"order":  order.ID,
		"source": source,
		"jobs":   len(order.ProductionJobs),
	})
	metadata := map[string]any{
		"source": source,
		"total":  order.Pricing.Total,
	}
	if order.PaymentIntentID != nil {
		metadata["paymentIntentId"] = *order.PaymentIntentID
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaid,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(expected),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
		Metadata:       metadata,
	})
	for _, job := range order.ProductionJobs {
		s.publishEvent(ctx, OrderEvent{
			Type:          productionEventJobCreated,
			OrderID:       order.ID,
			UserID:        order.UserID,
			CurrentStatus: string(job.Status),
			OccurredAt:    now,
			Metadata: map[string]any{
				"jobId":     job.ID,
				"nailSetId": job.NailSetID,
				"shapeId":   job.ShapeID,
				"quantity":  job.Quantity,
			},
		})
	}
	return order, nil
}

func (s *orderService) buildProductionJobs(order Order, due time.Time, now time.Time) []ProductionJob {
	jobs := make([]ProductionJob, 0, len(order.NailSets))
	for _, set := range order.NailSets {
		jobs = append(jobs, ProductionJob{
			ID:        productionJobIDPrefix + s.newID(),
			OrderID:   order.ID,
			NailSetID: set.ID,
			ShapeID:   set.ShapeID,
			Quantity:  set.Quantity,
			Status:    domain.ProductionJobQueued,
			DueDate:   valuePtr(due),
			CreatedAt: now,
		})
	}
	return jobs
}

// Cancel cancels an unpaid order. A stored payment intent is cancelled at the processor first.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusCancelled {
		return order, nil
	}
	if !canTransition(order.Status, domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: cannot cancel order in status %s", ErrOrderInvalidState, order.Status)
	}

	if order.PaymentIntentID != nil {
		_, err := s.payments.CancelIntent(ctx, payments.PaymentContext{Currency: order.Pricing.Currency}, *order.PaymentIntentID)
		if err != nil && !errors.Is(err, payments.ErrIntentNotFound) {
			s.logger(ctx, "order.payment.cancel_failed", map[string]any{
				"order":           order.ID,
				"paymentIntentId": *order.PaymentIntentID,
				"error":           err.Error(),
			})
			return Order{}, fmt.Errorf("%w: %v", ErrOrderPaymentUnavailable, err)
		}
	}

	now := s.now()
	expected := order.Status
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = valuePtr(now)
	order.CancelReason = sanitizeText(cmd.Reason)
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order, expected); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(expected),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": order.CancelReason},
	})
	return order, nil
}

// Delete removes a draft order and its nail sets.
func (s *orderService) Delete(ctx context.Context, orderID string) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusDraft || order.PaymentIntentID != nil {
		return fmt.Errorf("%w: only draft orders can be deleted", ErrOrderInvalidState)
	}
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Delete(txCtx, order.ID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventDeleted,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(order.Status),
		OccurredAt:     s.now(),
	})
	return nil
}

// MarkCompleted records that the studio finished and handed over a paid order.
func (s *orderService) MarkCompleted(ctx context.Context, orderID string) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusCompleted {
		return s.withJobs(ctx, order)
	}
	if !canTransition(order.Status, domain.OrderStatusCompleted) {
		return Order{}, fmt.Errorf("%w: cannot complete fulfillment of order in status %s", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	expected := order.Status
	order.Status = domain.OrderStatusCompleted
	order.CompletedAt = valuePtr(now)
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order, expected); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCompleted,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(expected),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
	})
	return s.withJobs(ctx, order)
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return s.withJobs(ctx, order)
}

func (s *orderService) ListOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if limit <= 0 {
		limit = defaultOrderListLimit
	}
	if limit > maxOrderListLimit {
		limit = maxOrderListLimit
	}
	orders, err := s.orders.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) priceOrder(ctx context.Context, userID string, sets []NailSet, fulfillment FulfillmentSelection, promoCode string, now time.Time) (PriceBreakdown, string, error) {
	input := PricingInput{
		NailSets:      sets,
		Fulfillment:   fulfillment,
		ReferenceDate: now,
	}
	var promoID string
	if promoCode != "" {
		validation, err := s.promotions.ValidatePromotion(ctx, ValidatePromotionCommand{
			Code:        promoCode,
			UserID:      userID,
			NailSets:    sets,
			Fulfillment: fulfillment,
		})
		if err != nil {
			return PriceBreakdown{}, "", err
		}
		if !validation.Valid {
			return PriceBreakdown{}, "", &PromotionRejectedError{
				Code:       validation.Code,
				ReasonCode: validation.ReasonCode,
				Reason:     validation.Reason,
			}
		}
		promoID = validation.PromoCodeID
		input.Discount = &DiscountInput{
			Code:        validation.Code,
			Description: validation.Description,
			Amount:      validation.Discount,
		}
	}
	breakdown, err := s.pricing.Quote(ctx, input)
	if err != nil {
		return PriceBreakdown{}, "", err
	}
	return breakdown, promoID, nil
}

// confirmPayment checks that the processor settled the order's intent for the requested amount.
func (s *orderService) confirmPayment(ctx context.Context, order Order, conf paymentConfirmation) error {
	if order.PaymentIntentID == nil {
		return fmt.Errorf("%w: order has no payment intent", ErrOrderInvalidState)
	}
	amount := conf.amount
	if !conf.confirmed {
		intent, err := s.payments.GetIntent(ctx, payments.PaymentContext{Currency: order.Pricing.Currency}, *order.PaymentIntentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOrderPaymentUnavailable, err)
		}
		if intent.Status != payments.StatusSucceeded {
			s.logger(ctx, "order.payment.unconfirmed", map[string]any{
				"order":           order.ID,
				"paymentIntentId": intent.ID,
				"intentStatus":    string(intent.Status),
				"source":          conf.source,
			})
			return fmt.Errorf("%w: intent %s is %s", ErrOrderPaymentIncomplete, intent.ID, intent.Status)
		}
		amount = intent.Amount
	}
	if amount != order.PaymentAmount {
		s.logger(ctx, "order.payment.amount_mismatch", map[string]any{
			"order":           order.ID,
			"paymentIntentId": *order.PaymentIntentID,
			"expected":        order.PaymentAmount,
			"confirmed":       amount,
			"source":          conf.source,
		})
		return fmt.Errorf("%w: confirmed %d, order requested %d", ErrPaymentAmountMismatch, amount, order.PaymentAmount)
	}
	return nil
}

// reserveCapacity takes a slot in the order's week and claims it on the order row. It must run in
// the transaction that persists the order so a failed write gives the slot back.
func (s *orderService) reserveCapacity(ctx context.Context, order *Order, now time.Time) error {
	if order.CapacityWeek != nil {
		return nil
	}
	status, err := s.capacity.CheckAndReserve(ctx, now)
	if err != nil {
		return err
	}
	if status.Degraded {
		s.logger(ctx, "order.capacity.unverified", map[string]any{"order": order.ID})
	}
	week := status.WeekStart
	if err := s.orders.ClaimCapacityWeek(ctx, order.ID, week); err != nil {
		return s.mapRepositoryError(err)
	}
	order.CapacityWeek = &week
	return nil
}

func (s *orderService) withJobs(ctx context.Context, order Order) (Order, error) {
	if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusCompleted {
		return order, nil
	}
	if len(order.ProductionJobs) > 0 {
		return order, nil
	}
	jobs, err := s.jobs.ListByOrder(ctx, order.ID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	order.ProductionJobs = jobs
	return order, nil
}

func (s *orderService) normalizeNailSets(input []NailSet) ([]NailSet, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: at least one nail set is required", ErrOrderInvalidInput)
	}
	sets := make([]NailSet, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	for i, raw := range input {
		set := NailSet{
			ID:               strings.TrimSpace(raw.ID),
			Name:             sanitizeText(raw.Name),
			ShapeID:          strings.TrimSpace(raw.ShapeID),
			Quantity:         raw.Quantity,
			Description:      sanitizeText(raw.Description),
			DesignUploads:    compactStrings(raw.DesignUploads),
			Sizes:            domain.SizeSpec{Mode: raw.Sizes.Mode, Values: maps.Clone(raw.Sizes.Values)},
			RequiresFollowUp: raw.RequiresFollowUp,
		}
		if set.ShapeID == "" {
			return nil, fmt.Errorf("%w: set %d shape is required", ErrOrderInvalidInput, i+1)
		}
		if set.Quantity < 1 {
			return nil, fmt.Errorf("%w: set %d quantity must be at least 1", ErrOrderInvalidInput, i+1)
		}
		if !set.HasDesignInput() {
			return nil, fmt.Errorf("%w: set %d needs a design upload, a description, or a follow-up request", ErrOrderInvalidInput, i+1)
		}
		switch set.Sizes.Mode {
		case "":
			set.Sizes.Mode = domain.SizeModeStandard
		case domain.SizeModeStandard:
		case domain.SizeModePerSet:
			if len(set.Sizes.Values) == 0 && !set.RequiresFollowUp {
				return nil, fmt.Errorf("%w: set %d custom sizing needs finger sizes", ErrOrderInvalidInput, i+1)
			}
		default:
			return nil, fmt.Errorf("%w: set %d has unknown size mode %q", ErrOrderInvalidInput, i+1, set.Sizes.Mode)
		}
		if set.ID == "" {
			set.ID = nailSetIDPrefix + s.newID()
		}
		if _, dup := seen[set.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate nail set id %q", ErrOrderInvalidInput, set.ID)
		}
		seen[set.ID] = struct{}{}
		sets = append(sets, set)
	}
	return sets, nil
}

func normalizeFulfillment(input FulfillmentSelection) (FulfillmentSelection, error) {
	selection := FulfillmentSelection{
		Method: domain.FulfillmentMethod(strings.ToLower(strings.TrimSpace(string(input.Method)))),
		Speed:  strings.ToLower(strings.TrimSpace(input.Speed)),
	}
	switch selection.Method {
	case domain.FulfillmentPickup, domain.FulfillmentDelivery, domain.FulfillmentShipping:
	default:
		return FulfillmentSelection{}, fmt.Errorf("%w: unknown fulfillment method %q", ErrOrderInvalidInput, input.Method)
	}
	if input.Address != nil {
		addr := *input.Address
		addr.Recipient = strings.TrimSpace(addr.Recipient)
		addr.Line1 = strings.TrimSpace(addr.Line1)
		addr.Line2 = strings.TrimSpace(addr.Line2)
		addr.City = strings.TrimSpace(addr.City)
		addr.State = strings.TrimSpace(addr.State)
		addr.PostalCode = strings.TrimSpace(addr.PostalCode)
		addr.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
		addr.Phone = strings.TrimSpace(addr.Phone)
		selection.Address = &addr
	}
	if selection.Method == domain.FulfillmentShipping {
		addr := selection.Address
		if addr == nil || addr.Line1 == "" || addr.City == "" || addr.PostalCode == "" {
			return FulfillmentSelection{}, fmt.Errorf("%w: shipping requires an address with line1, city and postal code", ErrOrderInvalidInput)
		}
	}
	return selection, nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	return fmt.Errorf("order service: %w", err)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func sanitizeText(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(plainTextPolicy.Sanitize(value)))
}

func compactStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func valuePtr[T any](v T) *T {
	return &v
}

func canTransition(current, target OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
