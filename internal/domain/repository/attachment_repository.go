package repository

import (
	"context"

	"llm-gateway/internal/domain/entity"
)

type AttachmentRepository interface {
	// GetByIDs 按输入顺序返回；不存在的 ID 不出现在结果中
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Attachment, error)
}
