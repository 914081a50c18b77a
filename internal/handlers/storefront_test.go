package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

func newStorefrontRouter(h *StorefrontHandlers) http.Handler {
	r := chi.NewRouter()
	r.Use(CustomerMiddleware)
	h.Routes(r)
	return r
}

const quoteBody = `{"nailSets":[{"shapeId":"almond","quantity":2}],"fulfillment":{"method":"pickup"}}`

func TestStorefront_QuoteReturnsBreakdown(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	var captured services.PricingInput
	pricing := &stubPricingService{
		quoteFn: func(_ context.Context, input services.PricingInput) (services.PriceBreakdown, error) {
			captured = input
			return domain.PriceBreakdown{
				Currency: "USD",
				Items: []domain.LineItem{
					{ID: "set_1", Label: "Almond x2", Kind: domain.LineItemKindSet, Amount: 5000},
					{ID: "delivery", Label: "Pickup", Kind: domain.LineItemKindDelivery, Amount: 0},
				},
				Subtotal:                5000,
				Total:                   5000,
				EstimatedCompletionDays: 10,
				EstimatedCompletionDate: now.AddDate(0, 0, 10),
			}, nil
		},
	}
	h := NewStorefrontHandlers(pricing, nil, nil, WithStorefrontClock(func() time.Time { return now }))

	rr := httptest.NewRecorder()
	newStorefrontRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/pricing:quote", strings.NewReader(quoteBody)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.ReferenceDate.Equal(now) || captured.Discount != nil {
		t.Fatalf("unexpected pricing input %+v", captured)
	}
	body := decodeBody(t, rr)
	if body["total"] != float64(5000) || body["totalFormatted"] != domain.FormatAmount(5000, "USD") {
		t.Fatalf("unexpected totals %v", body)
	}
	if body["estimatedCompletionDate"] != "2026-03-14" {
		t.Fatalf("unexpected completion date %v", body["estimatedCompletionDate"])
	}
	if items, _ := body["items"].([]any); len(items) != 2 {
		t.Fatalf("expected two line items, got %v", body["items"])
	}
}

func TestStorefront_QuoteValidationError(t *testing.T) {
	pricing := &stubPricingService{
		quoteFn: func(context.Context, services.PricingInput) (services.PriceBreakdown, error) {
			return services.PriceBreakdown{}, services.ErrOrderInvalidInput
		},
	}
	rr := httptest.NewRecorder()
	newStorefrontRouter(NewStorefrontHandlers(pricing, nil, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/pricing:quote", strings.NewReader(`{"nailSets":[]}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestStorefront_ValidatePromotionRejectionIs200(t *testing.T) {
	var captured services.ValidatePromotionCommand
	promotions := &stubPromotionService{
		validateFn: func(_ context.Context, cmd services.ValidatePromotionCommand) (services.PromoValidation, error) {
			captured = cmd
			return services.PromoValidation{
				Valid:      false,
				Code:       "SPRING",
				Subtotal:   2000,
				NewTotal:   2000,
				Reason:     "A minimum order of $30.00 USD is required for this promo code",
				ReasonCode: services.PromotionReasonMinOrder,
			}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/promotions:validate", strings.NewReader(`{"code":"spring","userId":"ignored","nailSets":[{"shapeId":"almond","quantity":1}],"fulfillment":{"method":"pickup"}}`))
	req.Header.Set(CustomerHeader, "cust_1")
	rr := httptest.NewRecorder()
	newStorefrontRouter(NewStorefrontHandlers(nil, promotions, nil)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.UserID != "cust_1" || captured.Code != "spring" || len(captured.NailSets) != 1 {
		t.Fatalf("unexpected command %+v", captured)
	}
	body := decodeBody(t, rr)
	if body["valid"] != false || body["reasonCode"] != "min_order" {
		t.Fatalf("unexpected payload %v", body)
	}
	if body["reason"] != "A minimum order of $30.00 USD is required for this promo code" {
		t.Fatalf("expected reason verbatim, got %v", body["reason"])
	}
}

func TestStorefront_ValidatePromotionSuccess(t *testing.T) {
	promotions := &stubPromotionService{
		validateFn: func(context.Context, services.ValidatePromotionCommand) (services.PromoValidation, error) {
			return services.PromoValidation{
				Valid:       true,
				Code:        "SPRING",
				Type:        domain.PromoTypePercentage,
				Discount:    500,
				Description: "Spring sale",
				Subtotal:    5000,
				NewTotal:    4500,
			}, nil
		},
	}
	rr := httptest.NewRecorder()
	newStorefrontRouter(NewStorefrontHandlers(nil, promotions, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/promotions:validate", strings.NewReader(`{"code":"SPRING"}`)))
	body := decodeBody(t, rr)
	if rr.Code != http.StatusOK || body["valid"] != true || body["discount"] != float64(500) || body["newTotal"] != float64(4500) {
		t.Fatalf("unexpected response %d %v", rr.Code, body)
	}
	if body["type"] != "percentage" {
		t.Fatalf("unexpected type %v", body["type"])
	}
}

func TestStorefront_ValidatePromotionEmptyCode(t *testing.T) {
	promotions := &stubPromotionService{
		validateFn: func(context.Context, services.ValidatePromotionCommand) (services.PromoValidation, error) {
			return services.PromoValidation{}, services.ErrPromotionInvalidCode
		},
	}
	rr := httptest.NewRecorder()
	newStorefrontRouter(NewStorefrontHandlers(nil, promotions, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/promotions:validate", strings.NewReader(`{"code":""}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestStorefront_CurrentCapacity(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	var reference time.Time
	capacity := &stubCapacityService{
		checkFn: func(_ context.Context, ref time.Time) (services.CapacityStatus, error) {
			reference = ref
			return domain.CapacityStatus{
				Available:     true,
				Remaining:     2,
				Capacity:      10,
				OrdersCount:   8,
				WeekStart:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				NextWeekStart: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
				AlmostFull:    true,
			}, nil
		},
	}
	router := newStorefrontRouter(NewStorefrontHandlers(nil, nil, capacity, WithStorefrontClock(func() time.Time { return now })))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/capacity/current", nil))
	if rr.Code != http.StatusOK || !reference.Equal(now) {
		t.Fatalf("unexpected result %d ref=%s", rr.Code, reference)
	}
	body := decodeBody(t, rr)
	if body["weekStart"] != "2026-03-02" || body["nextWeekStart"] != "2026-03-09" || body["almostFull"] != true || body["remaining"] != float64(2) {
		t.Fatalf("unexpected payload %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/capacity/current?date=2026-04-01", nil))
	if rr.Code != http.StatusOK || reference.Format(time.DateOnly) != "2026-04-01" {
		t.Fatalf("expected explicit date to be used, got %d %s", rr.Code, reference)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/capacity/current?date=April", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rr.Code)
	}
}

func TestStorefront_RoutesOnlyForConfiguredServices(t *testing.T) {
	router := newStorefrontRouter(NewStorefrontHandlers(nil, nil, nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/pricing:quote", strings.NewReader(`{}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without pricing service, got %d", rr.Code)
	}
}
