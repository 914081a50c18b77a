package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

func TestWriteServiceError_KindMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", fmt.Errorf("%w: quantity must be positive", services.ErrOrderInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"not found", services.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"conflict", services.ErrCapacityFull, http.StatusConflict, "conflict"},
		{"state", services.ErrOrderInvalidState, http.StatusConflict, "invalid_state"},
		{"upstream", services.ErrOrderPaymentUnavailable, http.StatusServiceUnavailable, "upstream_unavailable"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(context.Background(), rr, tc.err)
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if body := decodeBody(t, rr); body["error"] != tc.wantCode {
				t.Fatalf("expected code %q, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestWriteServiceError_PromotionRejected(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(context.Background(), rr, &services.PromotionRejectedError{
		Code:       "SPRING",
		ReasonCode: services.PromotionReasonPerUserLimit,
		Reason:     "You have already used this promo code",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["message"] != "You have already used this promo code" {
		t.Fatalf("expected reason verbatim, got %v", body["message"])
	}

	rr = httptest.NewRecorder()
	writeServiceError(context.Background(), rr, &services.PromotionRejectedError{
		Code:       "SPRING",
		ReasonCode: services.PromotionReasonMaxUses,
		Reason:     "This promo code has reached its usage limit",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for max uses, got %d", rr.Code)
	}
}

func TestDecodeJSONBody(t *testing.T) {
	var dst struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSONBody(httptest.NewRequest(http.MethodPost, "/", nil), &dst, true); err != nil {
		t.Fatalf("empty body should be allowed: %v", err)
	}
	if err := decodeJSONBody(httptest.NewRequest(http.MethodPost, "/", nil), &dst, false); err == nil {
		t.Fatalf("expected error for required body")
	}
	if err := decodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"a"}{"reason":"b"}`)), &dst, false); err == nil {
		t.Fatalf("expected error for trailing data")
	}
	if err := decodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"ok"}`)), &dst, false); err != nil || dst.Reason != "ok" {
		t.Fatalf("unexpected result %v %+v", err, dst)
	}
}
