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

// GeminiAdapter 通过 streamGenerateContent?alt=sse 读取 Gemini 流
type GeminiAdapter struct {
	baseAdapter
	client *http.Client
}

// NewGeminiAdapter 创建 Gemini 适配器
func NewGeminiAdapter(s Settings) *GeminiAdapter {
	return &GeminiAdapter{
		baseAdapter: baseAdapter{settings: s},
		client:      newHTTPClient(s.Timeout),
	}
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

func (a *GeminiAdapter) headers() map[string]string {
	return map[string]string{"x-goog-api-key": a.settings.APIKey}
}

func (a *GeminiAdapter) modelURL(modelID string) string {
	return strings.TrimRight(a.settings.BaseURL, "/") + "/models/" + modelID
}

// StreamGenerate 以 candidate 的 finishReason 作为完成标记
func (a *GeminiAdapter) StreamGenerate(ctx context.Context, conv *model.Conversation, modelID string) *model.DeltaStream {
	req := geminiRequest{
		Contents: a.buildContents(conv),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     a.settings.Temperature,
			MaxOutputTokens: a.settings.MaxTokens,
		},
	}
	if sys := conv.System(); sys != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}
	url := a.modelURL(modelID) + ":streamGenerateContent?alt=sse"

	return newDeltaStream(ctx, a.Provider(), modelID, defaultMapper(a.Provider(), refineGemini), func(ctx context.Context, emit func(string) bool) (streamResult, error) {
		resp, err := doPostStream(ctx, a.client, url, req, a.headers())
		if err != nil {
			return streamResult{}, err
		}
		defer resp.Body.Close()

		var res streamResult
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

			chunk := gjson.Parse(payload)
			if e := chunk.Get("error"); e.Exists() {
				kind, code, msg := geminiErrorKind(e)
				return res, &streamPayloadError{Kind: kind, Code: code, Message: msg}
			}
			if u := chunk.Get("usageMetadata"); u.Exists() {
				res.Usage = &model.Usage{
					PromptTokens:     int(u.Get("promptTokenCount").Int()),
					CompletionTokens: int(u.Get("candidatesTokenCount").Int()),
					TotalTokens:      int(u.Get("totalTokenCount").Int()),
				}
			}
			if block := chunk.Get("promptFeedback.blockReason"); block.Exists() {
				res.FinishReason = "SAFETY"
				res.Completed = true
				return res, nil
			}

			candidate := chunk.Get("candidates.0")
			for _, part := range candidate.Get("content.parts").Array() {
				if part.Get("thought").Bool() {
					continue
				}
				if !emit(part.Get("text").String()) {
					return res, nil
				}
			}
			if r := candidate.Get("finishReason"); r.Exists() && r.String() != "" && r.String() != "FINISH_REASON_UNSPECIFIED" {
				res.FinishReason = r.String()
				res.Completed = true
			}
		}
	})
}

// HealthCheck 读取首个模型的元数据
func (a *GeminiAdapter) HealthCheck(ctx context.Context) error {
	modelID := "gemini-2.0-flash"
	if len(a.settings.Models) > 0 {
		modelID = a.settings.Models[0]
	}
	if err := doGet(ctx, a.client, a.modelURL(modelID), a.headers()); err != nil {
		return defaultMapper(a.Provider(), refineGemini)(err, false)
	}
	return nil
}

func (a *GeminiAdapter) buildContents(conv *model.Conversation) []geminiContent {
	turns := conv.Messages()
	contents := make([]geminiContent, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == model.RoleAssistant {
			role = "model"
		}
		native := func(att model.AttachmentContent) bool {
			if role != "user" {
				return false
			}
			switch att.Ref.Kind {
			case model.AttachmentImage:
				return att.HasInline() || att.URL != ""
			case model.AttachmentAudio, model.AttachmentVideo:
				return att.HasInline()
			default:
				return false
			}
		}
		parts := make([]geminiPart, 0, 1+len(t.Attachments))
		for _, text := range textParts(t, native) {
			parts = append(parts, geminiPart{Text: text})
		}
		for _, att := range t.Attachments {
			if !native(att) {
				continue
			}
			if att.URL != "" && att.Ref.Kind == model.AttachmentImage {
				parts = append(parts, geminiPart{FileData: &geminiFileData{MimeType: att.Ref.MimeType, FileURI: att.URL}})
				continue
			}
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{
				MimeType: att.Ref.MimeType,
				Data:     base64.StdEncoding.EncodeToString(att.Data),
			}})
		}
		if len(parts) == 0 {
			parts = append(parts, geminiPart{Text: " "})
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}
	return contents
}

func refineGemini(body []byte) (model.ErrorKind, string, string) {
	e := gjson.GetBytes(body, "error")
	if !e.Exists() {
		return "", "", ""
	}
	return geminiErrorKind(e)
}

// geminiErrorKind 按 google.rpc 状态码细化
func geminiErrorKind(e gjson.Result) (model.ErrorKind, string, string) {
	status := e.Get("status").String()
	msg := e.Get("message").String()
	switch status {
	case "RESOURCE_EXHAUSTED":
		return model.KindRateLimit, status, msg
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return model.KindAuth, status, msg
	case "INVALID_ARGUMENT", "NOT_FOUND", "FAILED_PRECONDITION":
		return model.KindInvalidRequest, status, msg
	case "UNAVAILABLE", "INTERNAL":
		return model.KindUpstreamUnavailable, status, msg
	case "DEADLINE_EXCEEDED":
		return model.KindTimeout, status, msg
	default:
		return model.KindUnknown, status, msg
	}
}
