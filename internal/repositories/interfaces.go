package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
)

// Registry is the storage backend handed to the services: one accessor per aggregate, plus the
// transaction boundary shared by all of them.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	ProductionJobs() ProductionJobRepository
	Promotions() PromotionRepository
	PromotionUsage() PromotionUsageRepository
	Capacity() CapacityRepository
	Catalog() CatalogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError is implemented by every backend's error type so services can classify failures
// without importing a driver.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err (or anything it wraps) is a RepositoryError for a missing row.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports a lost optimistic write or a uniqueness violation.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports a backend outage, including timeouts the driver could not classify.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// UnitOfWork runs fn in one transaction. Repositories called with the ctx passed to fn join it;
// a non-nil return rolls everything back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders together with their nail sets.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update writes the order header only when the stored status still equals expected.
	// A mismatch is reported as a conflict.
	Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	ReplaceNailSets(ctx context.Context, orderID string, sets []domain.NailSet) error
	// ClaimCapacityWeek records the reserved week on an order that holds none yet. An order that
	// already holds one is reported as a conflict.
	ClaimCapacityWeek(ctx context.Context, orderID string, week time.Time) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// ProductionJobRepository stores the production jobs derived from paid orders.
type ProductionJobRepository interface {
	InsertBatch(ctx context.Context, jobs []domain.ProductionJob) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.ProductionJob, error)
}

// PromotionRepository exposes promo code lookups and the optimistic usage counter.
type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (domain.PromoCode, error)
	// IncrementUses bumps uses_count only when it still equals expected and stays within max_uses.
	// It reports false when no row matched.
	IncrementUses(ctx context.Context, promoID string, expected int) (bool, error)
}

// PromotionUsageRepository records per-user promo consumption.
type PromotionUsageRepository interface {
	Insert(ctx context.Context, usage domain.PromoUsage) error
	CountByUser(ctx context.Context, promoID string, userID string) (int, error)
}

// CapacityRepository manages weekly admission counters.
type CapacityRepository interface {
	// GetOrCreate returns the row for weekStart, creating it from the latest prior week's capacity
	// (or defaultCapacity) when absent.
	GetOrCreate(ctx context.Context, weekStart time.Time, defaultCapacity int) (domain.WeeklyCapacity, error)
	// IncrementIfUnchanged bumps orders_count only when it still equals expected and is below capacity.
	IncrementIfUnchanged(ctx context.Context, weekStart time.Time, expected int) (bool, error)
	SetCapacity(ctx context.Context, weekStart time.Time, capacity int) (domain.WeeklyCapacity, error)
}

// CatalogRepository reads the externally managed catalog tables.
type CatalogRepository interface {
	GetShape(ctx context.Context, shapeID string) (domain.Shape, error)
	ListShapes(ctx context.Context) ([]domain.Shape, error)
	DeliveryMethods(ctx context.Context) (map[domain.FulfillmentMethod]domain.DeliveryMethod, error)
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
