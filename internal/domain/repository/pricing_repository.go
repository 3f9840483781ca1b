package repository

import (
	"context"
	"time"

	"llm-gateway/internal/domain/entity"
)

type ModelPricingRepository interface {
	// GetCurrent 返回 at 时刻生效的最新价格，没有时返回 nil
	GetCurrent(ctx context.Context, modelName string, at time.Time) (*entity.ModelPricing, error)
	Create(ctx context.Context, pricing *entity.ModelPricing) error
}
