package repository

import (
	"context"

	"llm-gateway/internal/domain/entity"
)

// TurnRepository 线程消息。List 类方法只返回未失效的消息，按创建时间升序
type TurnRepository interface {
	Create(ctx context.Context, turn *entity.Turn) error
	ListActive(ctx context.Context, threadID string, limit int) ([]*entity.Turn, error)
	// LatestReply 最近一条未失效用户消息之后最新的助手消息，没有时返回 nil
	LatestReply(ctx context.Context, threadID string) (*entity.Turn, error)
	Invalidate(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}
