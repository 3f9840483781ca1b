// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"llm-gateway/internal/domain/entity"
)

type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

// Create 消息可能被重复投递，按 generation_id 去重
func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "generation_id"}},
		DoNothing: true,
	}).Create(event).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}

type GenerationRecoveryRepository struct {
	client *Client
}

func NewGenerationRecoveryRepository(client *Client) *GenerationRecoveryRepository {
	return &GenerationRecoveryRepository{client: client}
}

func (r *GenerationRecoveryRepository) Create(ctx context.Context, rec *entity.GenerationRecovery) error {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRecoveryRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "generation_id"}},
		DoNothing: true,
	}).Create(rec).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create generation recovery: %w", err)
	}
	return nil
}
