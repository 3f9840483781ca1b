package service

import (
	"context"
	"time"

	"llm-gateway/internal/domain/model"
)

// ProviderAdapter 单个提供商家族的适配器。
// ctx 即取消令牌：取消后适配器停止读取上游并释放连接，但仍以一个终止增量结束流。
type ProviderAdapter interface {
	Provider() string
	Models() []string
	ContextWindow(modelID string) int
	MaxOutputTokens() int
	StreamGenerate(ctx context.Context, conv *model.Conversation, modelID string) *model.DeltaStream
	HealthCheck(ctx context.Context) error
}

// AdapterResolver 模型到适配器的只读映射
type AdapterResolver interface {
	// Resolve 返回适配器与提供商侧的模型名；未配置时返回 model.ErrUnavailableModel
	Resolve(modelID string) (ProviderAdapter, string, error)
}

// ProviderStatusRecorder 记录线上流量观察到的提供商健康状况
type ProviderStatusRecorder interface {
	RecordSuccess(provider string)
	RecordFailure(provider string, err error)
}

// ProviderStatus 对外展示的提供商状态
type ProviderStatus struct {
	Provider    string     `json:"provider"`
	Configured  bool       `json:"configured"`
	Available   bool       `json:"available"`
	Models      []string   `json:"models"`
	LastChecked *time.Time `json:"last_checked"`
	LastSuccess *time.Time `json:"last_success"`
	Error       string     `json:"error,omitempty"`
}
