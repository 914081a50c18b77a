package gormdb

import (
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
)

type orderRecord struct {
	ID                       string                      `gorm:"primaryKey;size:40"`
	UserID                   string                      `gorm:"size:64;not null;index:idx_orders_user_created,priority:1"`
	Status                   string                      `gorm:"size:24;not null;index"`
	Fulfillment              domain.FulfillmentSelection `gorm:"serializer:json"`
	Pricing                  domain.PriceBreakdown       `gorm:"serializer:json"`
	Total                    int64                       `gorm:"not null"`
	Currency                 string                      `gorm:"size:3;not null"`
	PromoCode                string                      `gorm:"size:64"`
	PromoCodeID              string                      `gorm:"size:40"`
	PromoUsageID             string                      `gorm:"size:40"`
	PaymentIntentID          *string                     `gorm:"size:128;uniqueIndex"`
	PaymentAmount            int64
	CapacityWeek             *time.Time
	Notes                    string `gorm:"type:text"`
	EstimatedFulfillmentDate *time.Time
	CancelReason             string    `gorm:"type:text"`
	CreatedAt                time.Time `gorm:"autoCreateTime:false;index:idx_orders_user_created,priority:2"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime:false"`
	SubmittedAt              *time.Time
	PaymentRequestedAt       *time.Time
	PaidAt                   *time.Time
	CompletedAt              *time.Time
	CancelledAt              *time.Time
}

func (orderRecord) TableName() string { return "orders" }

type nailSetRecord struct {
	ID               string          `gorm:"primaryKey;size:40"`
	OrderID          string          `gorm:"size:40;not null;index:idx_nail_sets_order,priority:1"`
	Position         int             `gorm:"not null;index:idx_nail_sets_order,priority:2"`
	Name             string          `gorm:"size:200"`
	ShapeID          string          `gorm:"size:64;not null"`
	Quantity         int             `gorm:"not null"`
	Description      string          `gorm:"type:text"`
	DesignUploads    []string        `gorm:"serializer:json"`
	Sizes            domain.SizeSpec `gorm:"serializer:json"`
	RequiresFollowUp bool
}

func (nailSetRecord) TableName() string { return "order_nail_sets" }

type productionJobRecord struct {
	ID        string     `gorm:"primaryKey;size:40"`
	OrderID   string     `gorm:"size:40;not null;index"`
	NailSetID string     `gorm:"size:40;not null;uniqueIndex"`
	ShapeID   string     `gorm:"size:64;not null"`
	Quantity  int        `gorm:"not null"`
	Status    string     `gorm:"size:24;not null"`
	DueDate   *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (productionJobRecord) TableName() string { return "production_jobs" }

type promoCodeRecord struct {
	ID             string `gorm:"primaryKey;size:40"`
	Code           string `gorm:"size:64;not null;uniqueIndex"`
	Description    string `gorm:"type:text"`
	Type           string `gorm:"size:32;not null"`
	Value          int64  `gorm:"not null"`
	StartsAt       *time.Time
	EndsAt         *time.Time
	Active         bool `gorm:"not null"`
	MinOrderAmount *int64
	MaxUses        *int
	UsesCount      int `gorm:"not null;default:0"`
	PerUserLimit   *int
	Combinable     bool
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (promoCodeRecord) TableName() string { return "promo_codes" }

type promoUsageRecord struct {
	ID          string    `gorm:"primaryKey;size:40"`
	PromoCodeID string    `gorm:"size:40;not null;uniqueIndex:idx_promo_usage_order,priority:1;index:idx_promo_usage_user,priority:1"`
	OrderID     string    `gorm:"size:40;not null;uniqueIndex:idx_promo_usage_order,priority:2"`
	UserID      string    `gorm:"size:64;not null;index:idx_promo_usage_user,priority:2"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
}

func (promoUsageRecord) TableName() string { return "promo_usages" }

type weeklyCapacityRecord struct {
	WeekStart   time.Time `gorm:"primaryKey"`
	Capacity    int       `gorm:"not null"`
	OrdersCount int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (weeklyCapacityRecord) TableName() string { return "weekly_capacities" }

func allModels() []any {
	return []any{
		&orderRecord{},
		&nailSetRecord{},
		&productionJobRecord{},
		&promoCodeRecord{},
		&promoUsageRecord{},
		&weeklyCapacityRecord{},
	}
}

func toOrderRecord(order domain.Order) orderRecord {
	return orderRecord{
		ID:                       order.ID,
		UserID:                   order.UserID,
		Status:                   string(order.Status),
		Fulfillment:              order.Fulfillment,
		Pricing:                  order.Pricing,
		Total:                    order.Pricing.Total,
		Currency:                 order.Pricing.Currency,
		PromoCode:                order.PromoCode,
		PromoCodeID:              order.PromoCodeID,
		PromoUsageID:             order.PromoUsageID,
		PaymentIntentID:          order.PaymentIntentID,
		PaymentAmount:            order.PaymentAmount,
		CapacityWeek:             utcPtr(order.CapacityWeek),
		Notes:                    order.Notes,
		EstimatedFulfillmentDate: utcPtr(order.EstimatedFulfillmentDate),
		CancelReason:             order.CancelReason,
		CreatedAt:                order.CreatedAt.UTC(),
		UpdatedAt:                order.UpdatedAt.UTC(),
		SubmittedAt:              utcPtr(order.SubmittedAt),
		PaymentRequestedAt:       utcPtr(order.PaymentRequestedAt),
		PaidAt:                   utcPtr(order.PaidAt),
		CompletedAt:              utcPtr(order.CompletedAt),
		CancelledAt:              utcPtr(order.CancelledAt),
	}
}

func (r orderRecord) toDomain(sets []nailSetRecord) domain.Order {
	order := domain.Order{
		ID:                       r.ID,
		UserID:                   r.UserID,
		Status:                   domain.OrderStatus(r.Status),
		Fulfillment:              r.Fulfillment,
		Pricing:                  r.Pricing,
		PromoCode:                r.PromoCode,
		PromoCodeID:              r.PromoCodeID,
		PromoUsageID:             r.PromoUsageID,
		PaymentIntentID:          r.PaymentIntentID,
		PaymentAmount:            r.PaymentAmount,
		CapacityWeek:             utcPtr(r.CapacityWeek),
		Notes:                    r.Notes,
		EstimatedFulfillmentDate: utcPtr(r.EstimatedFulfillmentDate),
		CancelReason:             r.CancelReason,
		CreatedAt:                r.CreatedAt.UTC(),
		UpdatedAt:                r.UpdatedAt.UTC(),
		SubmittedAt:              utcPtr(r.SubmittedAt),
		PaymentRequestedAt:       utcPtr(r.PaymentRequestedAt),
		PaidAt:                   utcPtr(r.PaidAt),
		CompletedAt:              utcPtr(r.CompletedAt),
		CancelledAt:              utcPtr(r.CancelledAt),
	}
	order.NailSets = make([]domain.NailSet, 0, len(sets))
	for _, set := range sets {
		order.NailSets = append(order.NailSets, set.toDomain())
	}
	return order
}

func toNailSetRecords(orderID string, sets []domain.NailSet) []nailSetRecord {
	records := make([]nailSetRecord, 0, len(sets))
	for i, set := range sets {
		records = append(records, nailSetRecord{
			ID:               set.ID,
			OrderID:          orderID,
			Position:         i,
			Name:             set.Name,
			ShapeID:          set.ShapeID,
			Quantity:         set.Quantity,
			Description:      set.Description,
			DesignUploads:    set.DesignUploads,
			Sizes:            set.Sizes,
			RequiresFollowUp: set.RequiresFollowUp,
		})
	}
	return records
}

func (r nailSetRecord) toDomain() domain.NailSet {
	return domain.NailSet{
		ID:               r.ID,
		Name:             r.Name,
		ShapeID:          r.ShapeID,
		Quantity:         r.Quantity,
		Description:      r.Description,
		DesignUploads:    r.DesignUploads,
		Sizes:            r.Sizes,
		RequiresFollowUp: r.RequiresFollowUp,
	}
}

func toProductionJobRecord(job domain.ProductionJob) productionJobRecord {
	return productionJobRecord{
		ID:        job.ID,
		OrderID:   job.OrderID,
		NailSetID: job.NailSetID,
		ShapeID:   job.ShapeID,
		Quantity:  job.Quantity,
		Status:    string(job.Status),
		DueDate:   utcPtr(job.DueDate),
		CreatedAt: job.CreatedAt.UTC(),
	}
}

func (r productionJobRecord) toDomain() domain.ProductionJob {
	return domain.ProductionJob{
		ID:        r.ID,
		OrderID:   r.OrderID,
		NailSetID: r.NailSetID,
		ShapeID:   r.ShapeID,
		Quantity:  r.Quantity,
		Status:    domain.ProductionJobStatus(r.Status),
		DueDate:   utcPtr(r.DueDate),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func toPromoCodeRecord(promo domain.PromoCode) promoCodeRecord {
	return promoCodeRecord{
		ID:             promo.ID,
		Code:           promo.Code,
		Description:    promo.Description,
		Type:           string(promo.Type),
		Value:          promo.Value,
		StartsAt:       utcPtr(promo.StartsAt),
		EndsAt:         utcPtr(promo.EndsAt),
		Active:         promo.Active,
		MinOrderAmount: promo.MinOrderAmount,
		MaxUses:        promo.MaxUses,
		UsesCount:      promo.UsesCount,
		PerUserLimit:   promo.PerUserLimit,
		Combinable:     promo.Combinable,
		CreatedAt:      promo.CreatedAt.UTC(),
		UpdatedAt:      promo.UpdatedAt.UTC(),
	}
}

func (r promoCodeRecord) toDomain() domain.PromoCode {
	return domain.PromoCode{
		ID:             r.ID,
		Code:           r.Code,
		Description:    r.Description,
		Type:           domain.PromoType(r.Type),
		Value:          r.Value,
		StartsAt:       utcPtr(r.StartsAt),
		EndsAt:         utcPtr(r.EndsAt),
		Active:         r.Active,
		MinOrderAmount: r.MinOrderAmount,
		MaxUses:        r.MaxUses,
		UsesCount:      r.UsesCount,
		PerUserLimit:   r.PerUserLimit,
		Combinable:     r.Combinable,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r weeklyCapacityRecord) toDomain() domain.WeeklyCapacity {
	return domain.WeeklyCapacity{
		WeekStart:   r.WeekStart.UTC(),
		Capacity:    r.Capacity,
		OrdersCount: r.OrdersCount,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
