package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

type stubOrderService struct {
	saveDraftFn  func(context.Context, services.SaveDraftCommand) (services.Order, error)
	submitFn     func(context.Context, string) (services.Order, error)
	payFn        func(context.Context, services.InitiatePaymentCommand) (services.PaymentInitiation, error)
	completeFn   func(context.Context, services.CompleteOrderCommand) (services.Order, error)
	completeByFn func(context.Context, services.ConfirmPaymentCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.Order, error)
	deleteFn     func(context.Context, string) error
	markFn       func(context.Context, string) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	listFn       func(context.Context, string, int) ([]services.Order, error)
}

func (s *stubOrderService) SaveDraft(ctx context.Context, cmd services.SaveDraftCommand) (services.Order, error) {
	if s.saveDraftFn != nil {
		return s.saveDraftFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Submit(ctx context.Context, id string) (services.Order, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, id)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) InitiatePayment(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
	if s.payFn != nil {
		return s.payFn(ctx, cmd)
	}
	return services.PaymentInitiation{}, errors.New("not implemented")
}

func (s *stubOrderService) Complete(ctx context.Context, cmd services.CompleteOrderCommand) (services.Order, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) CompleteByPaymentIntent(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
	if s.completeByFn != nil {
		return s.completeByFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return errors.New("not implemented")
}

func (s *stubOrderService) MarkCompleted(ctx context.Context, id string) (services.Order, error) {
	if s.markFn != nil {
		return s.markFn(ctx, id)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, id string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, userID string, limit int) ([]services.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, limit)
	}
	return nil, nil
}

type stubPricingService struct {
	quoteFn func(context.Context, services.PricingInput) (services.PriceBreakdown, error)
}

func (s *stubPricingService) Quote(ctx context.Context, input services.PricingInput) (services.PriceBreakdown, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, input)
	}
	return services.PriceBreakdown{}, errors.New("not implemented")
}

type stubPromotionService struct {
	validateFn func(context.Context, services.ValidatePromotionCommand) (services.PromoValidation, error)
	getFn      func(context.Context, string) (services.PromoCode, error)
}

func (s *stubPromotionService) ValidatePromotion(ctx context.Context, cmd services.ValidatePromotionCommand) (services.PromoValidation, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.PromoValidation{}, errors.New("not implemented")
}

func (s *stubPromotionService) ApplyPromotion(context.Context, services.ApplyPromotionCommand) (services.PromotionApplication, error) {
	return services.PromotionApplication{}, errors.New("not implemented")
}

func (s *stubPromotionService) GetPromotion(ctx context.Context, code string) (services.PromoCode, error) {
	if s.getFn != nil {
		return s.getFn(ctx, code)
	}
	return services.PromoCode{}, services.ErrPromotionNotFound
}

type stubCapacityService struct {
	checkFn func(context.Context, time.Time) (services.CapacityStatus, error)
	setFn   func(context.Context, time.Time, int) (services.CapacityStatus, error)
}

func (s *stubCapacityService) CheckAvailability(ctx context.Context, ref time.Time) (services.CapacityStatus, error) {
	if s.checkFn != nil {
		return s.checkFn(ctx, ref)
	}
	return services.CapacityStatus{}, errors.New("not implemented")
}

func (s *stubCapacityService) CheckAndReserve(context.Context, time.Time) (services.CapacityStatus, error) {
	return services.CapacityStatus{}, errors.New("not implemented")
}

func (s *stubCapacityService) SetWeeklyCapacity(ctx context.Context, ref time.Time, capacity int) (services.CapacityStatus, error) {
	if s.setFn != nil {
		return s.setFn(ctx, ref, capacity)
	}
	return services.CapacityStatus{}, errors.New("not implemented")
}

func (s *stubCapacityService) WeekStart(ref time.Time) time.Time {
	return ref.Truncate(24 * time.Hour)
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}
