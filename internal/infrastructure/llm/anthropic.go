package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"llm-gateway/internal/domain/model"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter 直接解析 Messages API 的 SSE 流
type AnthropicAdapter struct {
	baseAdapter
	client *http.Client
}

// NewAnthropicAdapter 创建 Anthropic 适配器
func NewAnthropicAdapter(s Settings) *AnthropicAdapter {
	return &AnthropicAdapter{
		baseAdapter: baseAdapter{settings: s},
		client:      newHTTPClient(s.Timeout),
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *anthropicImage `json:"source,omitempty"`
}

type anthropicImage struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

func (a *AnthropicAdapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.settings.APIKey,
		"anthropic-version": anthropicVersion,
	}
}

// StreamGenerate 事件序列：message_start → content_block_delta* → message_delta → message_stop
func (a *AnthropicAdapter) StreamGenerate(ctx context.Context, conv *model.Conversation, modelID string) *model.DeltaStream {
	req := anthropicRequest{
		Model:       modelID,
		System:      conv.System(),
		Messages:    a.buildMessages(conv),
		MaxTokens:   a.settings.MaxTokens,
		Temperature: a.settings.Temperature,
		Stream:      true,
	}
	url := strings.TrimRight(a.settings.BaseURL, "/") + "/messages"

	return newDeltaStream(ctx, a.Provider(), modelID, defaultMapper(a.Provider(), refineAnthropic), func(ctx context.Context, emit func(string) bool) (streamResult, error) {
		resp, err := doPostStream(ctx, a.client, url, req, a.headers())
		if err != nil {
			return streamResult{}, err
		}
		defer resp.Body.Close()

		var res streamResult
		usage := model.Usage{}
		scanner := newSSEScanner(resp.Body)
		for {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			payload, err := scanner.Next()
			if errors.Is(err, io.EOF) || errors.Is(err, errStreamDone) {
				return res, nil
			}
			if err != nil {
				return res, err
			}

			event := gjson.Parse(payload)
			switch event.Get("type").String() {
			case "message_start":
				usage.PromptTokens = int(event.Get("message.usage.input_tokens").Int())
				usage.CompletionTokens = int(event.Get("message.usage.output_tokens").Int())
			case "content_block_delta":
				if event.Get("delta.type").String() == "text_delta" {
					if !emit(event.Get("delta.text").String()) {
						return res, nil
					}
				}
			case "message_delta":
				if r := event.Get("delta.stop_reason"); r.Exists() && r.Type != gjson.Null {
					res.FinishReason = r.String()
				}
				if out := event.Get("usage.output_tokens"); out.Exists() {
					usage.CompletionTokens = int(out.Int())
				}
			case "message_stop":
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				res.Usage = &usage
				res.Completed = true
				return res, nil
			case "error":
				kind, code, msg := refineAnthropicError(event.Get("error"))
				return res, &streamPayloadError{Kind: kind, Code: code, Message: msg}
			}
		}
	})
}

// HealthCheck 列出模型验证凭证与连通性
func (a *AnthropicAdapter) HealthCheck(ctx context.Context) error {
	err := doGet(ctx, a.client, strings.TrimRight(a.settings.BaseURL, "/")+"/models?limit=1", a.headers())
	if err != nil {
		return defaultMapper(a.Provider(), refineAnthropic)(err, false)
	}
	return nil
}

func (a *AnthropicAdapter) buildMessages(conv *model.Conversation) []anthropicMessage {
	turns := conv.Messages()
	msgs := make([]anthropicMessage, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == model.RoleAssistant {
			role = "assistant"
		}
		native := func(att model.AttachmentContent) bool {
			return role == "user" && att.Ref.Kind == model.AttachmentImage && (att.HasInline() || att.URL != "")
		}
		blocks := make([]anthropicBlock, 0, 1+len(t.Attachments))
		for _, att := range t.Attachments {
			if !native(att) {
				continue
			}
			src := &anthropicImage{Type: "base64", MediaType: att.Ref.MimeType}
			if att.HasInline() {
				src.Data = base64.StdEncoding.EncodeToString(att.Data)
			} else {
				src = &anthropicImage{Type: "url", URL: att.URL}
			}
			blocks = append(blocks, anthropicBlock{Type: "image", Source: src})
		}
		for _, text := range textParts(t, native) {
			blocks = append(blocks, anthropicBlock{Type: "text", Text: text})
		}
		if len(blocks) == 0 {
			blocks = append(blocks, anthropicBlock{Type: "text", Text: " "})
		}
		msgs = append(msgs, anthropicMessage{Role: role, Content: blocks})
	}
	return msgs
}

// refineAnthropic 解析 {"type":"error","error":{"type":...,"message":...}}
func refineAnthropic(body []byte) (model.ErrorKind, string, string) {
	e := gjson.GetBytes(body, "error")
	if !e.Exists() {
		return "", "", ""
	}
	return refineAnthropicError(e)
}

func refineAnthropicError(e gjson.Result) (model.ErrorKind, string, string) {
	typ := e.Get("type").String()
	msg := e.Get("message").String()
	switch typ {
	case "overloaded_error", "api_error":
		return model.KindUpstreamUnavailable, typ, msg
	case "rate_limit_error":
		return model.KindRateLimit, typ, msg
	case "authentication_error", "permission_error":
		return model.KindAuth, typ, msg
	case "invalid_request_error", "not_found_error", "request_too_large":
		return model.KindInvalidRequest, typ, msg
	case "timeout_error":
		return model.KindTimeout, typ, msg
	default:
		return model.KindUnknown, typ, msg
	}
}
