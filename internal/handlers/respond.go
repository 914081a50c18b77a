package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/httpx"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/observability"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

const (
	maxRequestBodySize        = 64 * 1024
	upstreamRetryAfterSeconds = 2
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSONBody rejects unknown fields and trailing data. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSONBody(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return errors.New("request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// writeServiceError maps service error kinds onto HTTP statuses.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var rejected *services.PromotionRejectedError
	if errors.As(err, &rejected) {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrConflict) {
			status = http.StatusConflict
		}
		httpx.WriteError(ctx, w, httpx.NewError("promotion_rejected", rejected.Reason, status).WithDetails(map[string]any{
			"reasonCode": rejected.ReasonCode,
			"promoCode":  rejected.Code,
		}))
		return
	}

	switch services.ErrorKind(err) {
	case services.ErrValidation:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case services.ErrNotFound:
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case services.ErrConflict:
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case services.ErrState:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case services.ErrUpstream:
		observability.FromContext(ctx).Warn("upstream failure", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("upstream_unavailable", "a dependency is temporarily unavailable; retry later", http.StatusServiceUnavailable).WithRetryAfter(upstreamRetryAfterSeconds))
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
			return
		}
		observability.FromContext(ctx).Error("unclassified service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}
