package gormdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/database"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

// OrderRepository stores orders in the orders table and their sets in order_nail_sets.
type OrderRepository struct {
	db *gorm.DB
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(db *gorm.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository: database is required")
	}
	return &OrderRepository{db: db}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	record := toOrderRecord(order)
	sets := toNailSetRecords(order.ID, order.NailSets)
	return r.withTx(ctx, func(conn *gorm.DB) error {
		if err := conn.Create(&record).Error; err != nil {
			return database.WrapError("orders.insert", err)
		}
		if len(sets) > 0 {
			if err := conn.Create(&sets).Error; err != nil {
				return database.WrapError("orders.insert_sets", err)
			}
		}
		return nil
	})
}

// Update writes every order column when the stored status still equals expected. Nail sets are
// untouched; use ReplaceNailSets.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	record := toOrderRecord(order)
	conn := database.Conn(ctx, r.db)
	res := conn.Model(&orderRecord{}).
		Where("id = ? AND status = ?", order.ID, string(expected)).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(&record)
	if res.Error != nil {
		return database.WrapError("orders.update", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var current orderRecord
	if err := conn.Select("id", "status").Take(&current, "id = ?", order.ID).Error; err != nil {
		return database.WrapError("orders.update", err)
	}
	return database.Conflict("orders.update", "order %s is %s, expected %s", order.ID, current.Status, expected)
}

// ClaimCapacityWeek sets capacity_week only while it is NULL, so of two transactions reserving for
// the same order exactly one commits.
func (r *OrderRepository) ClaimCapacityWeek(ctx context.Context, orderID string, week time.Time) error {
	conn := database.Conn(ctx, r.db)
	res := conn.Model(&orderRecord{}).
		Where("id = ? AND capacity_week IS NULL", orderID).
		Update("capacity_week", week.UTC())
	if res.Error != nil {
		return database.WrapError("orders.claim_capacity", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var current orderRecord
	if err := conn.Select("id").Take(&current, "id = ?", orderID).Error; err != nil {
		return database.WrapError("orders.claim_capacity", err)
	}
	return database.Conflict("orders.claim_capacity", "order %s already holds a capacity reservation", orderID)
}

func (r *OrderRepository) ReplaceNailSets(ctx context.Context, orderID string, sets []domain.NailSet) error {
	records := toNailSetRecords(orderID, sets)
	return r.withTx(ctx, func(conn *gorm.DB) error {
		if err := conn.Where("order_id = ?", orderID).Delete(&nailSetRecord{}).Error; err != nil {
			return database.WrapError("orders.replace_sets", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := conn.Create(&records).Error; err != nil {
			return database.WrapError("orders.replace_sets", err)
		}
		return nil
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.findOne(ctx, "orders.find", "id = ?", orderID)
}

func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	return r.findOne(ctx, "orders.find_by_intent", "payment_intent_id = ?", intentID)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	conn := database.Conn(ctx, r.db)
	var records []orderRecord
	query := conn.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, database.WrapError("orders.list", err)
	}
	if len(records) == 0 {
		return []domain.Order{}, nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	var sets []nailSetRecord
	if err := conn.Where("order_id IN ?", ids).Order("order_id").Order("position").Find(&sets).Error; err != nil {
		return nil, database.WrapError("orders.list_sets", err)
	}
	byOrder := make(map[string][]nailSetRecord, len(records))
	for _, set := range sets {
		byOrder[set.OrderID] = append(byOrder[set.OrderID], set)
	}

	orders := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, rec.toDomain(byOrder[rec.ID]))
	}
	return orders, nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.withTx(ctx, func(conn *gorm.DB) error {
		if err := conn.Where("order_id = ?", orderID).Delete(&nailSetRecord{}).Error; err != nil {
			return database.WrapError("orders.delete_sets", err)
		}
		res := conn.Where("id = ?", orderID).Delete(&orderRecord{})
		if res.Error != nil {
			return database.WrapError("orders.delete", res.Error)
		}
		if res.RowsAffected == 0 {
			return database.NotFound("orders.delete", "order %s not found", orderID)
		}
		return nil
	})
}

func (r *OrderRepository) findOne(ctx context.Context, op string, where string, arg any) (domain.Order, error) {
	conn := database.Conn(ctx, r.db)
	var record orderRecord
	if err := conn.Where(where, arg).Take(&record).Error; err != nil {
		return domain.Order{}, database.WrapError(op, err)
	}
	var sets []nailSetRecord
	if err := conn.Where("order_id = ?", record.ID).Order("position").Find(&sets).Error; err != nil {
		return domain.Order{}, database.WrapError(op+"_sets", err)
	}
	return record.toDomain(sets), nil
}

// withTx reuses the caller's transaction or opens a short one for multi-table writes.
func (r *OrderRepository) withTx(ctx context.Context, fn func(conn *gorm.DB) error) error {
	return database.NewUnitOfWork(r.db).RunInTx(ctx, func(txCtx context.Context) error {
		return fn(database.Conn(txCtx, r.db))
	})
}
