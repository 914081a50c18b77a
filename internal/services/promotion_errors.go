package services

import "errors"

var (
	// ErrPromotionRepositoryMissing indicates the promotion repository dependency is absent.
	ErrPromotionRepositoryMissing = errors.New("promotion service: repository is not configured")
	// ErrPromotionInvalidCode signals the supplied promotion code is empty.
	ErrPromotionInvalidCode = newKindError(ErrValidation, "promotion service: invalid promotion code")
	// ErrPromotionInvalidInput signals an apply call without the order it belongs to.
	ErrPromotionInvalidInput = newKindError(ErrValidation, "promotion service: invalid input")
	// ErrPromotionNotFound indicates no promotion exists for the provided code.
	ErrPromotionNotFound = newKindError(ErrNotFound, "promotion service: promotion not found")
	// ErrPromotionRejected is wrapped by PromotionRejectedError for business-rule rejections.
	ErrPromotionRejected = newKindError(ErrValidation, "promotion service: promotion rejected")
	// ErrPromotionMaxUsesReached is returned when the last use was consumed by a concurrent apply.
	// Callers must re-validate before retrying.
	ErrPromotionMaxUsesReached = newKindError(ErrConflict, "promotion service: promotion max uses reached")
	// ErrPromotionAlreadyApplied is returned when the order already consumed the promotion.
	ErrPromotionAlreadyApplied = newKindError(ErrConflict, "promotion service: promotion already applied to order")
	// ErrPromotionUnavailable wraps repository outages.
	ErrPromotionUnavailable = newKindError(ErrUpstream, "promotion service: repository unavailable")
)

// Reason codes reported on PromoValidation when a code is rejected.
const (
	// PromotionReasonNotFound also covers inactive and out-of-window codes.
	PromotionReasonNotFound     = "not_found"
	PromotionReasonMinOrder     = "min_order"
	PromotionReasonMaxUses      = "max_uses"
	PromotionReasonPerUserLimit = "per_user_limit"
)

// PromotionRejectedError carries the user-facing reason of a rejected apply.
type PromotionRejectedError struct {
	Code       string
	ReasonCode string
	Reason     string
}

func (e *PromotionRejectedError) Error() string {
	if e == nil {
		return ErrPromotionRejected.Error()
	}
	return "promotion service: promotion rejected: " + e.Reason
}

func (e *PromotionRejectedError) Unwrap() error {
	if e != nil && e.ReasonCode == PromotionReasonMaxUses {
		return ErrPromotionMaxUsesReached
	}
	return ErrPromotionRejected
}
