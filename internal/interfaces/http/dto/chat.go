package dto

import (
	"time"

	"llm-gateway/internal/application/chat"
	"llm-gateway/internal/domain/service"
	"llm-gateway/internal/infrastructure/llm"
)

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachment_ids,omitempty" binding:"omitempty,max=16,dive,max=64"`
}

// ChunkPayload 增量文本事件
type ChunkPayload struct {
	Text string `json:"text"`
}

// CancelResponse 取消生成响应
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// SSEvent 将对外事件转换为 SSE 的 event 名与数据
func SSEvent(ev chat.Event) (string, any) {
	switch ev.Type {
	case chat.EventDone:
		return string(ev.Type), ev.Done
	case chat.EventError:
		return string(ev.Type), ev.Error
	default:
		return string(chat.EventChunk), ChunkPayload{Text: ev.Text}
	}
}

// ModelListResponse 模型列表
type ModelListResponse struct {
	Models []llm.ModelInfo `json:"models"`
}

// ProviderStatusResponse 提供商状态
type ProviderStatusResponse struct {
	Provider    string     `json:"provider"`
	Configured  bool       `json:"configured"`
	Healthy     bool       `json:"healthy"`
	LastChecked *time.Time `json:"last_checked"`
	LastError   string     `json:"last_error,omitempty"`
	Models      []string   `json:"models"`
}

// ProviderListResponse 提供商状态列表
type ProviderListResponse struct {
	Providers []ProviderStatusResponse `json:"providers"`
}

// ToProviderListResponse 转换提供商状态
func ToProviderListResponse(statuses []service.ProviderStatus) ProviderListResponse {
	out := make([]ProviderStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		models := s.Models
		if models == nil {
			models = []string{}
		}
		out = append(out, ProviderStatusResponse{
			Provider:    s.Provider,
			Configured:  s.Configured,
			Healthy:     s.Available,
			LastChecked: s.LastChecked,
			LastError:   s.Error,
			Models:      models,
		})
	}
	return ProviderListResponse{Providers: out}
}
