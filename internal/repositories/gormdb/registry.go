package gormdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/database"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

// Registry wires the relational repositories onto one connection pool. Catalog and health come
// from the caller since they are backed by other stores.
type Registry struct {
	db *gorm.DB
	*database.UnitOfWork

	orders     *OrderRepository
	jobs       *ProductionJobRepository
	promotions *PromotionRepository
	usage      *PromotionUsageRepository
	capacity   *CapacityRepository
	catalog    repositories.CatalogRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	clock     func() time.Time
	txTimeout time.Duration
}

// WithRegistryClock overrides the clock used for updated_at stamps.
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRegistryTxTimeout bounds transactions started through the registry's unit of work.
func WithRegistryTxTimeout(timeout time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.txTimeout = timeout
	}
}

// NewRegistry builds every relational repository.
func NewRegistry(db *gorm.DB, catalog repositories.CatalogRepository, health repositories.HealthRepository, opts ...RegistryOption) (*Registry, error) {
	if db == nil {
		return nil, errors.New("gormdb: database is required")
	}
	if catalog == nil {
		return nil, errors.New("gormdb: catalog repository is required")
	}
	if health == nil {
		return nil, errors.New("gormdb: health repository is required")
	}

	options := registryOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	var txOpts []database.TxOption
	if options.txTimeout > 0 {
		txOpts = append(txOpts, database.WithTxTimeout(options.txTimeout))
	}

	orders, err := NewOrderRepository(db)
	if err != nil {
		return nil, err
	}
	jobs, err := NewProductionJobRepository(db)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(db, options.clock)
	if err != nil {
		return nil, err
	}
	usage, err := NewPromotionUsageRepository(db)
	if err != nil {
		return nil, err
	}
	capacity, err := NewCapacityRepository(db, options.clock)
	if err != nil {
		return nil, err
	}

	return &Registry{
		db:         db,
		UnitOfWork: database.NewUnitOfWork(db, txOpts...),
		orders:     orders,
		jobs:       jobs,
		promotions: promotions,
		usage:      usage,
		capacity:   capacity,
		catalog:    catalog,
		health:     health,
	}, nil
}

// Migrate creates or updates the relational schema.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("gormdb: database is required")
	}
	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("gormdb: migrate: %w", err)
	}
	return nil
}

func (r *Registry) Close(context.Context) error {
	return database.Close(r.db)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) ProductionJobs() repositories.ProductionJobRepository { return r.jobs }

func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }

func (r *Registry) PromotionUsage() repositories.PromotionUsageRepository { return r.usage }

func (r *Registry) Capacity() repositories.CapacityRepository { return r.capacity }

func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
