package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"llm-gateway/internal/domain/model"
)

func openAIChunk(content, finish string) string {
	fr := "null"
	if finish != "" {
		fr = `"` + finish + `"`
	}
	return `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"` + content + `"},"finish_reason":` + fr + `}]}`
}

func TestOpenAIAdapter_Streaming(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, openAIChunk("Sum", ""))
		writeSSE(w, openAIChunk("mary: ", ""))
		writeSSE(w, openAIChunk("done text", ""))
		writeSSE(w, openAIChunk("", "stop"))
		writeSSE(w, `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":30,"completion_tokens":12,"total_tokens":42}}`)
		writeSSE(w, "[DONE]")
	}))
	defer server.Close()

	a := NewOpenAIAdapter(testSettings("openai", server.URL+"/v1/"))
	deltas := collect(a.StreamGenerate(context.Background(), userConversation("hi"), "gpt-4o"))

	require.Len(t, deltas, 4)
	assert.Equal(t, "Summary: done text", joinText(deltas))
	done := deltas[3]
	assert.Equal(t, model.DeltaDone, done.Type)
	assert.Equal(t, model.FinishStop, done.FinishReason)
	require.NotNil(t, done.Usage)
	assert.Equal(t, 42, done.Usage.Total())

	req := gjson.ParseBytes(body)
	assert.True(t, req.Get("stream").Bool())
	assert.True(t, req.Get("stream_options.include_usage").Bool())
	assert.Equal(t, "system", req.Get("messages.0.role").String())
	assert.Equal(t, "gpt-4o", req.Get("model").String())
}

func TestOpenAIAdapter_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	a := NewOpenAIAdapter(testSettings("openai", server.URL+"/v1/"))
	deltas := collect(a.StreamGenerate(context.Background(), userConversation("hi"), "gpt-4o"))

	require.Len(t, deltas, 1)
	pe := deltas[0].Err
	require.NotNil(t, pe)
	assert.Equal(t, model.KindAuth, pe.Kind)
	assert.False(t, pe.Retryable)
	assert.Equal(t, "openai", pe.Provider)
}

func TestOpenAIAdapter_MissingFinishAfterText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, openAIChunk("half", ""))
	}))
	defer server.Close()

	a := NewOpenAIAdapter(testSettings("openai", server.URL+"/v1/"))
	deltas := collect(a.StreamGenerate(context.Background(), userConversation("hi"), "gpt-4o"))

	require.Len(t, deltas, 2)
	assert.Equal(t, model.KindUpstreamDisconnected, deltas[1].Err.Kind)
}

func TestOpenAIAdapter_UserParts(t *testing.T) {
	a := NewOpenAIAdapter(testSettings("openai", "http://unused/"))
	conv := model.NewConversation([]model.Turn{{
		Role: model.RoleUser,
		Text: "look",
		Attachments: []model.AttachmentContent{
			{Ref: model.AttachmentRef{Kind: model.AttachmentImage, MimeType: "image/png"}, URL: "https://cdn/x.png"},
			{Ref: model.AttachmentRef{Kind: model.AttachmentDocument, MimeType: "text/plain"}, Text: "notes"},
		},
	}})
	msgs := a.buildMessages(conv)
	require.Len(t, msgs, 1)
}

func TestOpenAIAdapter_Cancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, openAIChunk("first", ""))
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := NewOpenAIAdapter(testSettings("openai", server.URL+"/v1/"))

	var deltas []model.Delta
	for d := range a.StreamGenerate(ctx, userConversation("hi"), "gpt-4o").All() {
		deltas = append(deltas, d)
		if d.Type == model.DeltaText {
			cancel()
		}
	}

	require.Len(t, deltas, 2)
	assert.Equal(t, "first", deltas[0].Text)
	assert.Equal(t, model.DeltaError, deltas[1].Type)
	assert.Equal(t, model.KindCancelled, deltas[1].Err.Kind)
	assert.False(t, deltas[1].Err.Retryable)
}

func TestOpenAIAdapter_ConsumerStopsEarly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, openAIChunk("a", ""))
		writeSSE(w, openAIChunk("b", ""))
		writeSSE(w, openAIChunk("", "stop"))
		writeSSE(w, "[DONE]")
	}))
	defer server.Close()

	a := NewOpenAIAdapter(testSettings("openai", server.URL+"/v1/"))
	count := 0
	for range a.StreamGenerate(context.Background(), userConversation("hi"), "gpt-4o").All() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}
