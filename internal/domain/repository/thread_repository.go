package repository

import (
	"context"

	"llm-gateway/internal/domain/entity"
)

// ThreadRepository 线程只读访问，以及生成完成后刷新 updated_at
type ThreadRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Thread, error)
	Touch(ctx context.Context, id string) error
}
