package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"llm-gateway/internal/domain/model"
)

// OpenAIAdapter 基于 openai-go 官方 SDK 的流式适配器
type OpenAIAdapter struct {
	baseAdapter
	client *openai.Client
}

// NewOpenAIAdapter 创建 OpenAI 适配器；SDK 自带重试关闭，由网关统一重试
func NewOpenAIAdapter(s Settings, opts ...option.RequestOption) *OpenAIAdapter {
	base := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(newHTTPClient(s.Timeout)),
	}
	if s.BaseURL != "" {
		base = append(base, option.WithBaseURL(s.BaseURL))
	}
	return &OpenAIAdapter{
		baseAdapter: baseAdapter{settings: s},
		client:      openai.NewClient(append(base, opts...)...),
	}
}

// StreamGenerate 发起流式补全
func (a *OpenAIAdapter) StreamGenerate(ctx context.Context, conv *model.Conversation, modelID string) *model.DeltaStream {
	params := openai.ChatCompletionNewParams{
		Messages:            openai.F(a.buildMessages(conv)),
		Model:               openai.F(modelID),
		Temperature:         openai.Float(a.settings.Temperature),
		MaxCompletionTokens: openai.Int(int64(a.settings.MaxTokens)),
		StreamOptions: openai.F(openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.F(true),
		}),
	}

	return newDeltaStream(ctx, a.Provider(), modelID, a.mapError, func(ctx context.Context, emit func(string) bool) (streamResult, error) {
		stream := a.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var res streamResult
		for stream.Next() {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 || chunk.Usage.PromptTokens > 0 {
				res.Usage = &model.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if !emit(choice.Delta.Content) {
				return res, nil
			}
			if choice.FinishReason != "" {
				res.FinishReason = string(choice.FinishReason)
				res.Completed = true
			}
		}
		return res, stream.Err()
	})
}

// HealthCheck 查询第一个模型的元数据
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) error {
	if len(a.settings.Models) == 0 {
		_, err := a.client.Models.List(ctx)
		return err
	}
	_, err := a.client.Models.Get(ctx, a.settings.Models[0])
	return err
}

func (a *OpenAIAdapter) mapError(err error, emitted bool) *model.ProviderError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := strconv.Itoa(apiErr.StatusCode)
		if apiErr.Code != "" {
			code = apiErr.Code
		}
		kind := kindFromStatus(apiErr.StatusCode)
		if apiErr.Code == "context_length_exceeded" {
			kind = model.KindInvalidRequest
		}
		return model.NewProviderError(a.Provider(), code, kind, apiErr.Message, err)
	}
	return classifyTransport(a.Provider(), err, emitted)
}

func (a *OpenAIAdapter) buildMessages(conv *model.Conversation) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, conv.Len())
	if sys := conv.System(); sys != "" {
		msgs = append(msgs, openai.SystemMessage(sys))
	}
	for _, t := range conv.Messages() {
		if t.Role == model.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(flattenText(textParts(t, nil))))
			continue
		}
		msgs = append(msgs, a.userMessage(t))
	}
	return msgs
}

// userMessage 图片用托管 URL 或 data URL，wav/mp3 音频走 input_audio，其余转为文本
func (a *OpenAIAdapter) userMessage(t model.Turn) openai.ChatCompletionMessageParamUnion {
	native := func(att model.AttachmentContent) bool {
		switch att.Ref.Kind {
		case model.AttachmentImage:
			return imageURL(att) != ""
		case model.AttachmentAudio:
			return att.HasInline() && audioFormat(att.Ref.MimeType) != ""
		default:
			return false
		}
	}

	texts := textParts(t, native)
	hasNative := false
	for _, att := range t.Attachments {
		if native(att) {
			hasNative = true
			break
		}
	}
	if !hasNative {
		return openai.UserMessage(flattenText(texts))
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(texts)+len(t.Attachments))
	for _, text := range texts {
		parts = append(parts, openai.TextPart(text))
	}
	for _, att := range t.Attachments {
		if !native(att) {
			continue
		}
		switch att.Ref.Kind {
		case model.AttachmentImage:
			parts = append(parts, openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.F(openai.ChatCompletionContentPartImageImageURLParam{
					URL: openai.String(imageURL(att)),
				}),
				Type: openai.F(openai.ChatCompletionContentPartImageTypeImageURL),
			})
		case model.AttachmentAudio:
			parts = append(parts, openai.ChatCompletionContentPartInputAudioParam{
				InputAudio: openai.F(openai.ChatCompletionContentPartInputAudioInputAudioParam{
					Data:   openai.String(base64.StdEncoding.EncodeToString(att.Data)),
					Format: openai.F(openai.ChatCompletionContentPartInputAudioInputAudioFormat(audioFormat(att.Ref.MimeType))),
				}),
				Type: openai.F(openai.ChatCompletionContentPartInputAudioTypeInputAudio),
			})
		}
	}
	return openai.UserMessageParts(parts...)
}
