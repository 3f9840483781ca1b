package service

import (
	"context"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/model"
)

// AssistantTurn 一次生成的最终结果
type AssistantTurn struct {
	ThreadID     string
	Text         string
	Usage        *model.Usage
	Truncated    bool
	Model        string
	FinishReason model.FinishReason
	CostUSD      *float64
}

// TurnStore 持久化网关。所有写操作原子，失败返回 *model.PersistenceError
type TurnStore interface {
	AppendAssistantTurn(ctx context.Context, turn AssistantTurn) (string, error)
	AppendUserTurn(ctx context.Context, threadID, text string, attachmentIDs []string) (string, error)
	ListActive(ctx context.Context, threadID string, limit int) ([]*entity.Turn, error)
	LatestReply(ctx context.Context, threadID string) (*entity.Turn, error)
	Invalidate(ctx context.Context, turnID string) error
	Restore(ctx context.Context, turnID string) error
}
