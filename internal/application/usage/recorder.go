// Package usage 消费生成事件，写入用量流水与待恢复记录
package usage

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/repository"
	"llm-gateway/internal/domain/service"
	"llm-gateway/pkg/logger"
)

// Recorder 把完成的生成写成 llm_usage_events 流水
type Recorder struct {
	usageRepo repository.LLMUsageEventRepository
}

var _ service.LLMUsageRecorder = (*Recorder)(nil)

func NewRecorder(usageRepo repository.LLMUsageEventRepository) *Recorder {
	return &Recorder{usageRepo: usageRepo}
}

func (r *Recorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}

	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" || strings.TrimSpace(in.GenerationID) == "" {
		return fmt.Errorf("usage event missing thread or generation id")
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	evt := &entity.LLMUsageEvent{
		ThreadID:         threadID,
		TurnID:           strings.TrimSpace(in.TurnID),
		GenerationID:     in.GenerationID,
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		CostUSD:          in.CostUSD,
		DurationMs:       in.DurationMs,
		Truncated:        in.Truncated,
	}
	if !in.CompletedAt.IsZero() {
		evt.CreatedAt = in.CompletedAt
	}
	return r.usageRepo.Create(ctx, evt)
}

// RecoveryWriter 把写入失败的生成结果落到 generation_recoveries，供人工补录
type RecoveryWriter struct {
	repo repository.GenerationRecoveryRepository
}

func NewRecoveryWriter(repo repository.GenerationRecoveryRepository) *RecoveryWriter {
	return &RecoveryWriter{repo: repo}
}

func (w *RecoveryWriter) Store(ctx context.Context, in service.RecoveryInput) error {
	if strings.TrimSpace(in.GenerationID) == "" || strings.TrimSpace(in.ThreadID) == "" {
		return fmt.Errorf("recovery event missing thread or generation id")
	}

	usage, err := json.Marshal(map[string]int{
		"prompt_tokens":     in.PromptTokens,
		"completion_tokens": in.CompletionTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to encode recovery usage: %w", err)
	}

	rec := &entity.GenerationRecovery{
		GenerationID: in.GenerationID,
		ThreadID:     in.ThreadID,
		Model:        in.Model,
		Content:      in.Content,
		Usage:        usage,
		LastError:    in.LastError,
	}
	if err := w.repo.Create(ctx, rec); err != nil {
		return err
	}
	logger.Warn(ctx, "generation stored for manual recovery", "content_len", len(in.Content))
	return nil
}
