package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/httpx"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

// AdminHandlers exposes studio-only operations. They are mounted behind the admin token middleware.
type AdminHandlers struct {
	capacity   services.CapacityService
	promotions services.PromotionService
	clock      func() time.Time
}

type AdminOption func(*AdminHandlers)

func WithAdminClock(clock func() time.Time) AdminOption {
	return func(h *AdminHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewAdminHandlers(capacity services.CapacityService, promotions services.PromotionService, opts ...AdminOption) *AdminHandlers {
	h := &AdminHandlers{capacity: capacity, promotions: promotions, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *AdminHandlers) Routes(r chi.Router) {
	if h.capacity != nil {
		r.Put("/capacity", h.setCapacity)
	}
	if h.promotions != nil {
		r.Get("/promotions/{code}", h.getPromotion)
	}
}

type setCapacityRequest struct {
	WeekOf   string `json:"weekOf"`
	Capacity *int   `json:"capacity"`
}

type promotionPayload struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	Type           string  `json:"type"`
	Value          int64   `json:"value"`
	Description    string  `json:"description,omitempty"`
	Active         bool    `json:"active"`
	MinOrderAmount *int64  `json:"minOrderAmount,omitempty"`
	MaxUses        *int    `json:"maxUses,omitempty"`
	UsesCount      int     `json:"usesCount"`
	PerUserLimit   *int    `json:"perUserLimit,omitempty"`
	StartsAt       *string `json:"startsAt,omitempty"`
	EndsAt         *string `json:"endsAt,omitempty"`
}

func (h *AdminHandlers) setCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setCapacityRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	if req.Capacity == nil {
		writeBadRequest(ctx, w, "capacity is required")
		return
	}
	reference := h.clock()
	if raw := trimmed(req.WeekOf); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeBadRequest(ctx, w, "weekOf must be formatted as YYYY-MM-DD")
			return
		}
		reference = parsed
	}

	status, err := h.capacity.SetWeeklyCapacity(ctx, reference, *req.Capacity)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCapacityPayload(status))
}

func (h *AdminHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "promotion code is required", http.StatusBadRequest))
		return
	}
	promo, err := h.promotions.GetPromotion(ctx, code)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionPayload{
		ID:             promo.ID,
		Code:           promo.Code,
		Type:           string(promo.Type),
		Value:          promo.Value,
		Description:    promo.Description,
		Active:         promo.Active,
		MinOrderAmount: promo.MinOrderAmount,
		MaxUses:        promo.MaxUses,
		UsesCount:      promo.UsesCount,
		PerUserLimit:   promo.PerUserLimit,
		StartsAt:       formatTimePtr(promo.StartsAt),
		EndsAt:         formatTimePtr(promo.EndsAt),
	})
}
