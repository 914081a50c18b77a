package gormdb

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/database"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

// ProductionJobRepository stores production jobs; nail_set_id is unique so a set is produced once.
type ProductionJobRepository struct {
	db *gorm.DB
}

var _ repositories.ProductionJobRepository = (*ProductionJobRepository)(nil)

func NewProductionJobRepository(db *gorm.DB) (*ProductionJobRepository, error) {
	if db == nil {
		return nil, errors.New("production job repository: database is required")
	}
	return &ProductionJobRepository{db: db}, nil
}

func (r *ProductionJobRepository) InsertBatch(ctx context.Context, jobs []domain.ProductionJob) error {
	if len(jobs) == 0 {
		return nil
	}
	records := make([]productionJobRecord, 0, len(jobs))
	for _, job := range jobs {
		records = append(records, toProductionJobRecord(job))
	}
	if err := database.Conn(ctx, r.db).Create(&records).Error; err != nil {
		return database.WrapError("production_jobs.insert", err)
	}
	return nil
}

func (r *ProductionJobRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ProductionJob, error) {
	var records []productionJobRecord
	err := database.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at").
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, database.WrapError("production_jobs.list", err)
	}
	jobs := make([]domain.ProductionJob, 0, len(records))
	for _, rec := range records {
		jobs = append(jobs, rec.toDomain())
	}
	return jobs, nil
}
