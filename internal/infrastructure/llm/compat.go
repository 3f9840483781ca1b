package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"llm-gateway/internal/domain/model"
)

// statusCodePattern 从兼容客户端的错误文本中提取 HTTP 状态码
var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// CompatAdapter OpenAI 兼容协议的提供商（Grok、Mistral），基于 Eino ChatModel
type CompatAdapter struct {
	baseAdapter
	chatModel einomodel.BaseChatModel
	client    *http.Client
}

// NewCompatAdapter 创建兼容适配器
func NewCompatAdapter(ctx context.Context, s Settings) (*CompatAdapter, error) {
	maxTokens := s.MaxTokens
	temperature := float32(s.Temperature)
	defaultModel := ""
	if len(s.Models) > 0 {
		defaultModel = s.Models[0]
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      s.APIKey,
		BaseURL:     s.BaseURL,
		Model:       defaultModel,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		HTTPClient:  newHTTPClient(s.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", s.Name, err)
	}
	return newCompatAdapterWithModel(s, chatModel), nil
}

func newCompatAdapterWithModel(s Settings, chatModel einomodel.BaseChatModel) *CompatAdapter {
	return &CompatAdapter{
		baseAdapter: baseAdapter{settings: s},
		chatModel:   chatModel,
		client:      newHTTPClient(s.Timeout),
	}
}

// StreamGenerate 读取 Eino StreamReader，最后一个分片的 ResponseMeta 携带结束原因与用量
func (a *CompatAdapter) StreamGenerate(ctx context.Context, conv *model.Conversation, modelID string) *model.DeltaStream {
	msgs := buildEinoMessages(conv)

	return newDeltaStream(ctx, a.Provider(), modelID, a.mapError, func(ctx context.Context, emit func(string) bool) (streamResult, error) {
		reader, err := a.chatModel.Stream(ctx, msgs, einomodel.WithModel(modelID))
		if err != nil {
			return streamResult{}, err
		}
		defer reader.Close()

		var res streamResult
		for {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			msg, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			if err != nil {
				return res, err
			}
			if msg == nil {
				continue
			}
			if !emit(msg.Content) {
				return res, nil
			}
			if meta := msg.ResponseMeta; meta != nil {
				if meta.Usage != nil {
					res.Usage = &model.Usage{
						PromptTokens:     meta.Usage.PromptTokens,
						CompletionTokens: meta.Usage.CompletionTokens,
						TotalTokens:      meta.Usage.TotalTokens,
					}
				}
				if meta.FinishReason != "" {
					res.FinishReason = meta.FinishReason
					res.Completed = true
				}
			}
		}
	})
}

// HealthCheck 兼容协议都提供 GET /models
func (a *CompatAdapter) HealthCheck(ctx context.Context) error {
	url := strings.TrimRight(a.settings.BaseURL, "/") + "/models"
	if err := doGet(ctx, a.client, url, map[string]string{"Authorization": "Bearer " + a.settings.APIKey}); err != nil {
		return defaultMapper(a.Provider(), nil)(err, false)
	}
	return nil
}

func (a *CompatAdapter) mapError(err error, emitted bool) *model.ProviderError {
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return model.NewProviderError(a.Provider(), m[1], kindFromStatus(status), err.Error(), err)
	}
	return classifyTransport(a.Provider(), err, emitted)
}

// buildEinoMessages 图片统一以 data URL（或托管 URL）发送，其余附件转为文本
func buildEinoMessages(conv *model.Conversation) []*schema.Message {
	msgs := make([]*schema.Message, 0, conv.Len())
	if sys := conv.System(); sys != "" {
		msgs = append(msgs, schema.SystemMessage(sys))
	}
	for _, t := range conv.Messages() {
		if t.Role == model.RoleAssistant {
			msgs = append(msgs, schema.AssistantMessage(flattenText(textParts(t, nil)), nil))
			continue
		}
		native := func(att model.AttachmentContent) bool {
			return att.Ref.Kind == model.AttachmentImage && imageURL(att) != ""
		}
		texts := textParts(t, native)
		var images []schema.ChatMessagePart
		for _, att := range t.Attachments {
			if native(att) {
				images = append(images, schema.ChatMessagePart{
					Type:     schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{URL: imageURL(att)},
				})
			}
		}
		if len(images) == 0 {
			msgs = append(msgs, schema.UserMessage(flattenText(texts)))
			continue
		}
		parts := make([]schema.ChatMessagePart, 0, len(texts)+len(images))
		for _, text := range texts {
			parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: text})
		}
		parts = append(parts, images...)
		msgs = append(msgs, &schema.Message{Role: schema.User, MultiContent: parts})
	}
	return msgs
}
