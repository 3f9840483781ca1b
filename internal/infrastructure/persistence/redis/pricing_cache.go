package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/repository"
)

const pricingKeyPrefix = "pricing:model:"

// CachedPricingRepository 以 Redis 缓存模型价格；查询时刻按调用时间计算
type CachedPricingRepository struct {
	next  repository.ModelPricingRepository
	cache *Cache
	ttl   time.Duration
}

// NewCachedPricingRepository 包装底层价格仓储
func NewCachedPricingRepository(next repository.ModelPricingRepository, cache *Cache, ttl time.Duration) *CachedPricingRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPricingRepository{next: next, cache: cache, ttl: ttl}
}

// GetCurrent 没有价格时缓存 null，避免反复回源
func (r *CachedPricingRepository) GetCurrent(ctx context.Context, modelName string, at time.Time) (*entity.ModelPricing, error) {
	raw, err := r.cache.GetOrLoadSafe(ctx, pricingKeyPrefix+modelName, r.ttl, func() (any, error) {
		return r.next.GetCurrent(ctx, modelName, at)
	})
	if err != nil {
		return nil, err
	}
	var pricing *entity.ModelPricing
	if err := json.Unmarshal(raw, &pricing); err != nil {
		return nil, fmt.Errorf("failed to decode cached pricing: %w", err)
	}
	return pricing, nil
}

// Create 写入后清除该模型的缓存
func (r *CachedPricingRepository) Create(ctx context.Context, pricing *entity.ModelPricing) error {
	if err := r.next.Create(ctx, pricing); err != nil {
		return err
	}
	return r.cache.Delete(ctx, pricingKeyPrefix+pricing.ModelName)
}

// InvalidateAll 清除全部价格缓存
func (r *CachedPricingRepository) InvalidateAll(ctx context.Context) error {
	return r.cache.InvalidatePattern(ctx, pricingKeyPrefix+"*")
}
