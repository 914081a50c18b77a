package gormdb

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/database"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

// PromotionRepository reads promo codes and bumps uses_count with a conditional update.
type PromotionRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

func NewPromotionRepository(db *gorm.DB, clock func() time.Time) (*PromotionRepository, error) {
	if db == nil {
		return nil, errors.New("promotion repository: database is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &PromotionRepository{db: db, clock: clock}, nil
}

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.PromoCode, error) {
	var record promoCodeRecord
	if err := database.Conn(ctx, r.db).Where("code = ?", code).Take(&record).Error; err != nil {
		return domain.PromoCode{}, database.WrapError("promo_codes.find", err)
	}
	return record.toDomain(), nil
}

func (r *PromotionRepository) IncrementUses(ctx context.Context, promoID string, expected int) (bool, error) {
	res := database.Conn(ctx, r.db).
		Model(&promoCodeRecord{}).
		Where("id = ? AND uses_count = ?", promoID, expected).
		Where("max_uses IS NULL OR uses_count < max_uses").
		Updates(map[string]any{
			"uses_count": gorm.Expr("uses_count + 1"),
			"updated_at": r.clock().UTC(),
		})
	if res.Error != nil {
		return false, database.WrapError("promo_codes.increment_uses", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Upsert creates or replaces a promo code by code, keeping uses_count. The service itself never
// writes promo definitions; they are provisioned directly in the database, and tests load fixtures
// through this method.
func (r *PromotionRepository) Upsert(ctx context.Context, promo domain.PromoCode) error {
	now := r.clock().UTC()
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = now
	}
	promo.UpdatedAt = now
	record := toPromoCodeRecord(promo)
	err := database.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "type", "value", "starts_at", "ends_at", "active",
			"min_order_amount", "max_uses", "per_user_limit", "combinable", "updated_at",
		}),
	}).Create(&record).Error
	return database.WrapError("promo_codes.upsert", err)
}

// PromotionUsageRepository records promo consumption; (promo_code_id, order_id) is unique.
type PromotionUsageRepository struct {
	db *gorm.DB
}

var _ repositories.PromotionUsageRepository = (*PromotionUsageRepository)(nil)

func NewPromotionUsageRepository(db *gorm.DB) (*PromotionUsageRepository, error) {
	if db == nil {
		return nil, errors.New("promotion usage repository: database is required")
	}
	return &PromotionUsageRepository{db: db}, nil
}

func (r *PromotionUsageRepository) Insert(ctx context.Context, usage domain.PromoUsage) error {
	record := promoUsageRecord{
		ID:          usage.ID,
		PromoCodeID: usage.PromoCodeID,
		OrderID:     usage.OrderID,
		UserID:      usage.UserID,
		CreatedAt:   usage.CreatedAt.UTC(),
	}
	if err := database.Conn(ctx, r.db).Create(&record).Error; err != nil {
		return database.WrapError("promo_usages.insert", err)
	}
	return nil
}

func (r *PromotionUsageRepository) CountByUser(ctx context.Context, promoID string, userID string) (int, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&promoUsageRecord{}).
		Where("promo_code_id = ? AND user_id = ?", promoID, userID).
		Count(&count).Error
	if err != nil {
		return 0, database.WrapError("promo_usages.count", err)
	}
	return int(count), nil
}
