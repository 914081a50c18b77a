package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

const (
	promoUsageIDPrefix = "pru_"

	promotionMessageNotFound     = "Promo code not found or expired"
	promotionMessageMaxUses      = "This promo code has reached its usage limit"
	promotionMessagePerUserLimit = "You have already used this promo code the maximum number of times"
)

// PromotionServiceDeps bundles dependencies required to construct a PromotionService implementation.
type PromotionServiceDeps struct {
	Promotions  repositories.PromotionRepository
	Usage       repositories.PromotionUsageRepository
	Pricing     PricingService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
}

type promotionService struct {
	repo       repositories.PromotionRepository
	usage      repositories.PromotionUsageRepository
	pricing    PricingService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
	conflicts  metric.Int64Counter
}

// NewPromotionService wires a PromotionService backed by the provided repositories.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	if deps.Usage == nil {
		return nil, errors.New("promotion service: usage repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("promotion service: pricing service is required")
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
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	conflicts, err := meter.Int64Counter("promotion.apply.conflicts",
		metric.WithDescription("Promo applies that lost the optimistic uses_count update"))
	if err != nil {
		return nil, fmt.Errorf("promotion service: create counter: %w", err)
	}

	return &promotionService{
		repo:       deps.Promotions,
		usage:      deps.Usage,
		pricing:    deps.Pricing,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
		conflicts:  conflicts,
	}, nil
}

func (s *promotionService) GetPromotion(ctx context.Context, code string) (PromoCode, error) {
	normalized := normalizePromotionCode(code)
	if normalized == "" {
		return PromoCode{}, ErrPromotionInvalidCode
	}
	promo, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return PromoCode{}, s.mapRepositoryError(err)
	}
	return promo, nil
}

func (s *promotionService) ValidatePromotion(ctx context.Context, cmd ValidatePromotionCommand) (PromoValidation, error) {
	_, validation, err := s.evaluate(ctx, cmd.Code, strings.TrimSpace(cmd.UserID), PricingInput{
		NailSets:    cmd.NailSets,
		Fulfillment: cmd.Fulfillment,
	})
	return validation, err
}

// ApplyPromotion re-validates the code and consumes one use with a conditional uses_count update.
// Losing the update to a concurrent apply yields ErrPromotionMaxUsesReached.
func (s *promotionService) ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (PromotionApplication, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PromotionApplication{}, fmt.Errorf("%w: order id is required", ErrPromotionInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)

	var result PromotionApplication
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		promo, validation, err := s.evaluate(txCtx, cmd.Code, userID, PricingInput{
			NailSets:    cmd.NailSets,
			Fulfillment: cmd.Fulfillment,
		})
		if err != nil {
			return err
		}
		if !validation.Valid {
			return &PromotionRejectedError{
				Code:       validation.Code,
				ReasonCode: validation.ReasonCode,
				Reason:     validation.Reason,
			}
		}

		ok, err := s.repo.IncrementUses(txCtx, promo.ID, promo.UsesCount)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if !ok {
			s.conflicts.Add(txCtx, 1, metric.WithAttributes(attribute.String("code", promo.Code)))
			s.logger(txCtx, "promotion.apply.conflict", map[string]any{
				"code":      promo.Code,
				"orderId":   orderID,
				"usesCount": promo.UsesCount,
			})
			return ErrPromotionMaxUsesReached
		}

		usage := PromoUsage{
			ID:          promoUsageIDPrefix + s.newID(),
			PromoCodeID: promo.ID,
			UserID:      userID,
			OrderID:     orderID,
			CreatedAt:   s.clock(),
		}
		if err := s.usage.Insert(txCtx, usage); err != nil {
			if repositories.IsConflict(err) {
				return ErrPromotionAlreadyApplied
			}
			return s.mapRepositoryError(err)
		}
		result = PromotionApplication{Validation: validation, Usage: usage}
		return nil
	})
	if err != nil {
		return PromotionApplication{}, err
	}

	s.logger(ctx, "promotion.applied", map[string]any{
		"code":     result.Validation.Code,
		"orderId":  orderID,
		"discount": result.Validation.Discount,
	})
	return result, nil
}

func (s *promotionService) evaluate(ctx context.Context, code string, userID string, input PricingInput) (PromoCode, PromoValidation, error) {
	normalized := normalizePromotionCode(code)
	if normalized == "" {
		return PromoCode{}, PromoValidation{}, ErrPromotionInvalidCode
	}
	validation := PromoValidation{Code: normalized}

	promo, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if repositories.IsNotFound(err) {
			return PromoCode{}, reject(validation, PromotionReasonNotFound, promotionMessageNotFound), nil
		}
		return PromoCode{}, PromoValidation{}, s.mapRepositoryError(err)
	}
	validation.PromoCodeID = promo.ID
	validation.Type = promo.Type

	if reason := s.availability(promo); reason != "" {
		s.logger(ctx, "promotion.validate.unavailable", map[string]any{
			"code":   normalized,
			"reason": reason,
		})
		return promo, reject(validation, PromotionReasonNotFound, promotionMessageNotFound), nil
	}

	input.Discount = nil
	breakdown, err := s.pricing.Quote(ctx, input)
	if err != nil {
		return PromoCode{}, PromoValidation{}, err
	}
	subtotal := breakdown.Subtotal
	validation.Subtotal = subtotal
	validation.NewTotal = subtotal

	if promo.MinOrderAmount != nil && subtotal < *promo.MinOrderAmount {
		message := fmt.Sprintf("A minimum order of %s %s is required for this promo code",
			domain.FormatAmount(*promo.MinOrderAmount, breakdown.Currency), breakdown.Currency)
		return promo, reject(validation, PromotionReasonMinOrder, message), nil
	}
	if promo.MaxUses != nil && promo.UsesCount >= *promo.MaxUses {
		return promo, reject(validation, PromotionReasonMaxUses, promotionMessageMaxUses), nil
	}
	if userID != "" && promo.PerUserLimit != nil {
		used, err := s.usage.CountByUser(ctx, promo.ID, userID)
		if err != nil {
			return PromoCode{}, PromoValidation{}, s.mapRepositoryError(err)
		}
		if used >= *promo.PerUserLimit {
			return promo, reject(validation, PromotionReasonPerUserLimit, promotionMessagePerUserLimit), nil
		}
	}

	discount := promotionDiscount(promo, breakdown)
	validation.Valid = true
	validation.Discount = discount
	validation.Description = strings.TrimSpace(promo.Description)
	validation.NewTotal = subtotal - discount
	if validation.NewTotal < 0 {
		validation.NewTotal = 0
	}
	return promo, validation, nil
}

func (s *promotionService) availability(promo PromoCode) string {
	if !promo.Active {
		return "inactive"
	}
	now := s.clock()
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return "not_started"
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return "expired"
	}
	return ""
}

// promotionDiscount computes the discount in minor units; the result never exceeds the subtotal.
func promotionDiscount(promo PromoCode, breakdown PriceBreakdown) int64 {
	subtotal := breakdown.Subtotal
	if subtotal <= 0 {
		return 0
	}
	var discount int64
	switch promo.Type {
	case domain.PromoTypePercentage:
		discount = percentageOf(subtotal, promo.Value)
	case domain.PromoTypeFixedAmount, domain.PromoTypeFixedPriceItem:
		discount = promo.Value
	case domain.PromoTypeFreeShipping:
		discount = breakdown.DeliveryFee()
	case domain.PromoTypeFreeOrder:
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}

// percentageOf returns amount × basisPoints / 10000 rounded half up.
func percentageOf(amount int64, basisPoints int64) int64 {
	if basisPoints <= 0 {
		return 0
	}
	if basisPoints >= 10000 {
		return amount
	}
	whole := amount / 10000
	rest := amount % 10000
	return whole*basisPoints + (rest*basisPoints+5000)/10000
}

func reject(validation PromoValidation, code string, message string) PromoValidation {
	validation.Valid = false
	validation.Discount = 0
	validation.ReasonCode = code
	validation.Reason = message
	return validation
}

func normalizePromotionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *promotionService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *promotionService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrPromotionNotFound, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrPromotionMaxUsesReached, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrPromotionUnavailable, err)
	}
	return fmt.Errorf("promotion service: %w", err)
}
