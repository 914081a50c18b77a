// Package catalogcache shares catalog reads across API instances through Redis.
package catalogcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

const (
	keyPrefix          = "catalog:"
	deliveryMethodsKey = keyPrefix + "delivery_methods"
	shapesKey          = keyPrefix + "shapes"
)

// Client is the subset of go-redis the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Repository is a read-through cache in front of another CatalogRepository. Redis failures
// degrade to the primary source; not-found results are never cached.
type Repository struct {
	primary repositories.CatalogRepository
	client  Client
	ttl     time.Duration
	logger  *zap.Logger
}

func New(primary repositories.CatalogRepository, client Client, ttl time.Duration, logger *zap.Logger) (*Repository, error) {
	if primary == nil {
		return nil, errors.New("catalogcache: primary repository is required")
	}
	if client == nil {
		return nil, errors.New("catalogcache: redis client is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{primary: primary, client: client, ttl: ttl, logger: logger}, nil
}

func (r *Repository) GetShape(ctx context.Context, shapeID string) (domain.Shape, error) {
	key := keyPrefix + "shape:" + shapeID
	var shape domain.Shape
	if r.load(ctx, key, &shape) {
		return shape, nil
	}
	shape, err := r.primary.GetShape(ctx, shapeID)
	if err != nil {
		return domain.Shape{}, err
	}
	r.store(ctx, key, shape)
	return shape, nil
}

func (r *Repository) ListShapes(ctx context.Context) ([]domain.Shape, error) {
	var shapes []domain.Shape
	if r.load(ctx, shapesKey, &shapes) {
		return shapes, nil
	}
	shapes, err := r.primary.ListShapes(ctx)
	if err != nil {
		return nil, err
	}
	r.store(ctx, shapesKey, shapes)
	return shapes, nil
}

func (r *Repository) DeliveryMethods(ctx context.Context) (map[domain.FulfillmentMethod]domain.DeliveryMethod, error) {
	var methods map[domain.FulfillmentMethod]domain.DeliveryMethod
	if r.load(ctx, deliveryMethodsKey, &methods) {
		return methods, nil
	}
	methods, err := r.primary.DeliveryMethods(ctx)
	if err != nil {
		return nil, err
	}
	r.store(ctx, deliveryMethodsKey, methods)
	return methods, nil
}

func (r *Repository) load(ctx context.Context, key string, dst any) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("catalogcache: get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		r.logger.Warn("catalogcache: discarding undecodable entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *Repository) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("catalogcache: set failed", zap.String("key", key), zap.Error(err))
	}
}
