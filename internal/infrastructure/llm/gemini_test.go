package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"llm-gateway/internal/domain/model"
)

func TestGeminiAdapter_Streaming(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ = io.ReadAll(r.Body)

		writeSSE(w, `{"candidates":[{"content":{"parts":[{"text":"Hi"}],"role":"model"}}]}`)
		writeSSE(w, `{"candidates":[{"content":{"parts":[{"text":" there"}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`)
	}))
	defer server.Close()

	conv := model.NewConversation([]model.Turn{
		{Role: model.RoleSystem, Text: "sys"},
		{Role: model.RoleUser, Text: "q1"},
		{Role: model.RoleAssistant, Text: "a1"},
		{Role: model.RoleUser, Text: "q2", Attachments: []model.AttachmentContent{
			{Ref: model.AttachmentRef{Kind: model.AttachmentAudio, MimeType: "audio/wav"}, Data: []byte("wav")},
		}},
	})
	a := NewGeminiAdapter(testSettings("google", server.URL))
	deltas := collect(a.StreamGenerate(context.Background(), conv, "gemini-2.0-flash"))

	require.Len(t, deltas, 3)
	assert.Equal(t, "Hi there", joinText(deltas))
	assert.Equal(t, model.FinishStop, deltas[2].FinishReason)
	assert.Equal(t, model.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, *deltas[2].Usage)

	req := gjson.ParseBytes(body)
	assert.Equal(t, "sys", req.Get("systemInstruction.parts.0.text").String())
	assert.Equal(t, "model", req.Get("contents.1.role").String())
	assert.Equal(t, "q2", req.Get("contents.2.parts.0.text").String())
	assert.Equal(t, "audio/wav", req.Get("contents.2.parts.1.inlineData.mimeType").String())
	assert.Equal(t, int64(1024), req.Get("generationConfig.maxOutputTokens").Int())
}

func TestGeminiAdapter_SafetyFinish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"candidates":[{"content":{"parts":[{"text":"x"}]},"finishReason":"SAFETY"}]}`)
	}))
	defer server.Close()

	a := NewGeminiAdapter(testSettings("google", server.URL))
	deltas := collect(a.StreamGenerate(context.Background(), userConversation("hi"), "gemini-2.0-flash"))

	require.Len(t, deltas, 2)
	assert.Equal(t, model.FinishContentFilter, deltas[1].FinishReason)
}

func TestGeminiAdapter_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	a := NewGeminiAdapter(testSettings("google", server.URL))
	deltas := collect(a.StreamGenerate(context.Background(), userConversation("hi"), "gemini-2.0-flash"))

	require.Len(t, deltas, 1)
	assert.Equal(t, model.KindAuth, deltas[0].Err.Kind)
	assert.Equal(t, "PERMISSION_DENIED", deltas[0].Err.ProviderCode)
	assert.False(t, deltas[0].Err.Retryable)
}

func TestGeminiAdapter_EmptyStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := NewGeminiAdapter(testSettings("google", server.URL))
	deltas := collect(a.StreamGenerate(context.Background(), userConversation("hi"), "gemini-2.0-flash"))

	require.Len(t, deltas, 1)
	assert.Equal(t, model.KindUpstreamUnavailable, deltas[0].Err.Kind)
}

func TestGeminiAdapter_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models/gemini-2.0-flash" {
			_, _ = w.Write([]byte(`{"name":"models/gemini-2.0-flash"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	a := NewGeminiAdapter(testSettings("google", server.URL))
	assert.NoError(t, a.HealthCheck(context.Background()))
}

func TestGeminiAdapter_Cancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"candidates":[{"content":{"parts":[{"text":"first"}],"role":"model"}}]}`)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := NewGeminiAdapter(testSettings("google", server.URL))

	var deltas []model.Delta
	for d := range a.StreamGenerate(ctx, userConversation("hi"), "gemini-2.0-flash").All() {
		deltas = append(deltas, d)
		if d.Type == model.DeltaText {
			cancel()
		}
	}

	require.Len(t, deltas, 2)
	assert.Equal(t, "first", deltas[0].Text)
	assert.Equal(t, model.DeltaError, deltas[1].Type)
	assert.Equal(t, model.KindCancelled, deltas[1].Err.Kind)
}

func TestGeminiAdapter_ConsumerStopsEarly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"candidates":[{"content":{"parts":[{"text":"a"},{"text":"b"}],"role":"model"}}]}`)
		writeSSE(w, `{"candidates":[{"content":{"parts":[{"text":"c"}],"role":"model"},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	a := NewGeminiAdapter(testSettings("google", server.URL))
	count := 0
	for range a.StreamGenerate(context.Background(), userConversation("hi"), "gemini-2.0-flash").All() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}
