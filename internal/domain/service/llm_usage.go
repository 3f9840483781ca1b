package service

import (
	"context"
	"time"
)

// LLMUsageInput 表示一次完成的生成的可观测数据。
// 说明：该结构位于 domain/service，作为跨层的稳定契约（port），避免基础设施层依赖应用层实现。
type LLMUsageInput struct {
	GenerationID string
	ThreadID     string
	TurnID       string

	Provider string
	Model    string

	PromptTokens     int
	CompletionTokens int
	CostUSD          *float64
	DurationMs       int
	Truncated        bool
	CompletedAt      time.Time
}

// LLMUsageRecorder 负责记录 LLM 使用量流水。
// 约定：该接口的实现应尽量“best-effort”，不应阻塞主业务流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}

// RecoveryInput 写入失败、需要人工恢复的生成结果
type RecoveryInput struct {
	GenerationID     string
	ThreadID         string
	Model            string
	Content          string
	PromptTokens     int
	CompletionTokens int
	LastError        string
}

// GenerationEventPublisher 生成结束后的异步事件出口（用量流水、恢复队列）
type GenerationEventPublisher interface {
	PublishUsage(ctx context.Context, in LLMUsageInput) error
	PublishRecovery(ctx context.Context, in RecoveryInput) error
}
