package chat

import (
	"context"
	"time"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/repository"
	"llm-gateway/internal/domain/service"
)

// RepositoryTurnStore 基于仓储与事务管理器的持久化网关
type RepositoryTurnStore struct {
	txMgr   repository.Transactor
	turns   repository.TurnRepository
	threads repository.ThreadRepository
}

var _ service.TurnStore = (*RepositoryTurnStore)(nil)

func NewRepositoryTurnStore(txMgr repository.Transactor, turns repository.TurnRepository, threads repository.ThreadRepository) *RepositoryTurnStore {
	return &RepositoryTurnStore{txMgr: txMgr, turns: turns, threads: threads}
}

// AppendAssistantTurn 在同一事务中写入助手消息并刷新线程时间
func (s *RepositoryTurnStore) AppendAssistantTurn(ctx context.Context, in service.AssistantTurn) (string, error) {
	turn := &entity.Turn{
		ThreadID:     in.ThreadID,
		Role:         entity.RoleAssistant,
		Content:      in.Text,
		Model:        in.Model,
		CostUSD:      in.CostUSD,
		FinishReason: string(in.FinishReason),
		Truncated:    in.Truncated,
		CreatedAt:    time.Now(),
	}
	if u := in.Usage; u != nil {
		prompt, completion, total := u.PromptTokens, u.CompletionTokens, u.Total()
		turn.PromptTokens = &prompt
		turn.CompletionTokens = &completion
		turn.TotalTokens = &total
	}

	err := s.txMgr.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.turns.Create(ctx, turn); err != nil {
			return err
		}
		return s.threads.Touch(ctx, in.ThreadID)
	})
	if err != nil {
		return "", &model.PersistenceError{Op: "append_assistant_turn", Err: err}
	}
	return turn.ID, nil
}

func (s *RepositoryTurnStore) AppendUserTurn(ctx context.Context, threadID, text string, attachmentIDs []string) (string, error) {
	turn := entity.NewUserTurn(threadID, text, attachmentIDs)
	err := s.txMgr.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.turns.Create(ctx, turn); err != nil {
			return err
		}
		return s.threads.Touch(ctx, threadID)
	})
	if err != nil {
		return "", &model.PersistenceError{Op: "append_user_turn", Err: err}
	}
	return turn.ID, nil
}

func (s *RepositoryTurnStore) ListActive(ctx context.Context, threadID string, limit int) ([]*entity.Turn, error) {
	turns, err := s.turns.ListActive(ctx, threadID, limit)
	if err != nil {
		return nil, &model.PersistenceError{Op: "list_turns", Err: err}
	}
	return turns, nil
}

func (s *RepositoryTurnStore) LatestReply(ctx context.Context, threadID string) (*entity.Turn, error) {
	turn, err := s.turns.LatestReply(ctx, threadID)
	if err != nil {
		return nil, &model.PersistenceError{Op: "latest_reply", Err: err}
	}
	return turn, nil
}

func (s *RepositoryTurnStore) Invalidate(ctx context.Context, turnID string) error {
	if err := s.turns.Invalidate(ctx, turnID); err != nil {
		return &model.PersistenceError{Op: "invalidate_turn", Err: err}
	}
	return nil
}

func (s *RepositoryTurnStore) Restore(ctx context.Context, turnID string) error {
	if err := s.turns.Restore(ctx, turnID); err != nil {
		return &model.PersistenceError{Op: "restore_turn", Err: err}
	}
	return nil
}
