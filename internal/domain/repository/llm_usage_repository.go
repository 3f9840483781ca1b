package repository

import (
	"context"

	"llm-gateway/internal/domain/entity"
)

type LLMUsageEventRepository interface {
	// Create 以 GenerationID 幂等写入
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
}

type GenerationRecoveryRepository interface {
	// Create 以 GenerationID 幂等写入
	Create(ctx context.Context, rec *entity.GenerationRecovery) error
}
