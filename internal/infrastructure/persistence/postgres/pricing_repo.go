// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"llm-gateway/internal/domain/entity"
)

type ModelPricingRepository struct {
	client *Client
}

func NewModelPricingRepository(client *Client) *ModelPricingRepository {
	return &ModelPricingRepository{client: client}
}

func (r *ModelPricingRepository) GetCurrent(ctx context.Context, modelName string, at time.Time) (*entity.ModelPricing, error) {
	ctx, span := tracer.Start(ctx, "postgres.ModelPricingRepository.GetCurrent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var pricing entity.ModelPricing
	err := db.Where("model_name = ? AND effective_from <= ?", modelName, at).
		Order("effective_from DESC").
		First(&pricing).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get model pricing: %w", err)
	}
	return &pricing, nil
}

func (r *ModelPricingRepository) Create(ctx context.Context, pricing *entity.ModelPricing) error {
	ctx, span := tracer.Start(ctx, "postgres.ModelPricingRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(pricing).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create model pricing: %w", err)
	}
	return nil
}
