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

// CapacityRepository manages weekly_capacities rows keyed by the week's Monday.
type CapacityRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

var _ repositories.CapacityRepository = (*CapacityRepository)(nil)

func NewCapacityRepository(db *gorm.DB, clock func() time.Time) (*CapacityRepository, error) {
	if db == nil {
		return nil, errors.New("capacity repository: database is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &CapacityRepository{db: db, clock: clock}, nil
}

// GetOrCreate returns the week's row. A missing row copies the capacity of the latest earlier
// week; concurrent creators race on the primary key and all read back the winner.
func (r *CapacityRepository) GetOrCreate(ctx context.Context, weekStart time.Time, defaultCapacity int) (domain.WeeklyCapacity, error) {
	weekStart = weekStart.UTC()
	conn := database.Conn(ctx, r.db)

	var record weeklyCapacityRecord
	err := conn.Where("week_start = ?", weekStart).Take(&record).Error
	if err == nil {
		return record.toDomain(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WeeklyCapacity{}, database.WrapError("weekly_capacities.get", err)
	}

	capacity := defaultCapacity
	var previous weeklyCapacityRecord
	err = conn.Where("week_start < ?", weekStart).Order("week_start DESC").Limit(1).Take(&previous).Error
	switch {
	case err == nil:
		capacity = previous.Capacity
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.WeeklyCapacity{}, database.WrapError("weekly_capacities.previous", err)
	}
	if capacity < 1 {
		return domain.WeeklyCapacity{}, repositories.NewCapacityError("get_or_create", repositories.CapacityErrorInvalidInput, "default capacity must be at least 1", nil)
	}

	now := r.clock().UTC()
	record = weeklyCapacityRecord{WeekStart: weekStart, Capacity: capacity, CreatedAt: now, UpdatedAt: now}
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return domain.WeeklyCapacity{}, database.WrapError("weekly_capacities.create", err)
	}
	if err := conn.Where("week_start = ?", weekStart).Take(&record).Error; err != nil {
		return domain.WeeklyCapacity{}, database.WrapError("weekly_capacities.get", err)
	}
	return record.toDomain(), nil
}

func (r *CapacityRepository) IncrementIfUnchanged(ctx context.Context, weekStart time.Time, expected int) (bool, error) {
	res := database.Conn(ctx, r.db).
		Model(&weeklyCapacityRecord{}).
		Where("week_start = ? AND orders_count = ? AND orders_count < capacity", weekStart.UTC(), expected).
		Updates(map[string]any{
			"orders_count": gorm.Expr("orders_count + 1"),
			"updated_at":   r.clock().UTC(),
		})
	if res.Error != nil {
		return false, database.WrapError("weekly_capacities.increment", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetCapacity upserts the week's capacity without touching orders_count.
func (r *CapacityRepository) SetCapacity(ctx context.Context, weekStart time.Time, capacity int) (domain.WeeklyCapacity, error) {
	if capacity < 1 {
		return domain.WeeklyCapacity{}, repositories.NewCapacityError("set", repositories.CapacityErrorInvalidInput, "capacity must be at least 1", nil)
	}
	weekStart = weekStart.UTC()
	now := r.clock().UTC()
	conn := database.Conn(ctx, r.db)

	record := weeklyCapacityRecord{WeekStart: weekStart, Capacity: capacity, CreatedAt: now, UpdatedAt: now}
	err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "week_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"capacity", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return domain.WeeklyCapacity{}, database.WrapError("weekly_capacities.set", err)
	}
	if err := conn.Where("week_start = ?", weekStart).Take(&record).Error; err != nil {
		return domain.WeeklyCapacity{}, database.WrapError("weekly_capacities.get", err)
	}
	return record.toDomain(), nil
}
