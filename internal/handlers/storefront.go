package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

// StorefrontHandlers serves the read-mostly endpoints the cart and checkout screens call.
type StorefrontHandlers struct {
	pricing    services.PricingService
	promotions services.PromotionService
	capacity   services.CapacityService
	clock      func() time.Time
}

type StorefrontOption func(*StorefrontHandlers)

func WithStorefrontClock(clock func() time.Time) StorefrontOption {
	return func(h *StorefrontHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewStorefrontHandlers(pricing services.PricingService, promotions services.PromotionService, capacity services.CapacityService, opts ...StorefrontOption) *StorefrontHandlers {
	h := &StorefrontHandlers{
		pricing:    pricing,
		promotions: promotions,
		capacity:   capacity,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *StorefrontHandlers) Routes(r chi.Router) {
	if h.pricing != nil {
		r.Post("/pricing:quote", h.quote)
	}
	if h.promotions != nil {
		r.Post("/promotions:validate", h.validatePromotion)
	}
	if h.capacity != nil {
		r.Get("/capacity/current", h.currentCapacity)
	}
}

type promotionValidateRequest struct {
	cartRequest
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

type promotionValidateResponse struct {
	Valid       bool   `json:"valid"`
	Code        string `json:"code"`
	Type        string `json:"type,omitempty"`
	Discount    int64  `json:"discount"`
	Description string `json:"description,omitempty"`
	Subtotal    int64  `json:"subtotal"`
	NewTotal    int64  `json:"newTotal"`
	Reason      string `json:"reason,omitempty"`
	ReasonCode  string `json:"reasonCode,omitempty"`
}

func (h *StorefrontHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cartRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	breakdown, err := h.pricing.Quote(ctx, services.PricingInput{
		NailSets:      req.nailSets(),
		Fulfillment:   req.fulfillment(),
		ReferenceDate: h.clock(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPricingPayload(breakdown))
}

// validatePromotion answers 200 for business-rule rejections so the cart can show the reason inline.
func (h *StorefrontHandlers) validatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req promotionValidateRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	userID := customerFromContext(ctx)
	if userID == "" {
		userID = trimmed(req.UserID)
	}

	validation, err := h.promotions.ValidatePromotion(ctx, services.ValidatePromotionCommand{
		Code:        req.Code,
		UserID:      userID,
		NailSets:    req.nailSets(),
		Fulfillment: req.fulfillment(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionValidateResponse{
		Valid:       validation.Valid,
		Code:        validation.Code,
		Type:        string(validation.Type),
		Discount:    validation.Discount,
		Description: validation.Description,
		Subtotal:    validation.Subtotal,
		NewTotal:    validation.NewTotal,
		Reason:      validation.Reason,
		ReasonCode:  validation.ReasonCode,
	})
}

func (h *StorefrontHandlers) currentCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := h.clock()
	if raw := trimmed(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeBadRequest(ctx, w, "date must be formatted as YYYY-MM-DD")
			return
		}
		reference = parsed
	}
	status, err := h.capacity.CheckAvailability(ctx, reference)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCapacityPayload(status))
}
