package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/application/chat"
	"llm-gateway/internal/domain/model"
	apperrors "llm-gateway/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChat struct {
	events []chat.Event
	err    error

	threadID    string
	text        string
	attachments []string
	cancelled   bool
}

func (f *fakeChat) SendTurn(_ context.Context, threadID, text string, attachmentIDs []string) (*chat.EventStream, error) {
	f.threadID, f.text, f.attachments = threadID, text, attachmentIDs
	if f.err != nil {
		return nil, f.err
	}
	return chat.ReplayStream("gen-1", f.events...), nil
}

func (f *fakeChat) Regenerate(_ context.Context, threadID string) (*chat.EventStream, error) {
	f.threadID = threadID
	if f.err != nil {
		return nil, f.err
	}
	return chat.ReplayStream("gen-2", f.events...), nil
}

func (f *fakeChat) Cancel(_ context.Context, threadID string) bool {
	f.threadID = threadID
	return f.cancelled
}

func newChatServer(t *testing.T, svc ChatService) *httptest.Server {
	t.Helper()
	h := NewChatHandler(svc)
	engine := gin.New()
	engine.POST("/v1/threads/:tid/messages", h.SendMessage)
	engine.POST("/v1/threads/:tid/regenerate", h.Regenerate)
	engine.DELETE("/v1/threads/:tid/generation", h.CancelGeneration)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimPrefix(line, "data:")
		case line == "" && cur.name != "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestSendMessage_StreamsEvents(t *testing.T) {
	usage := &model.Usage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42}
	svc := &fakeChat{events: []chat.Event{
		{Type: chat.EventChunk, Text: "Sum"},
		{Type: chat.EventChunk, Text: "mary"},
		{Type: chat.EventDone, Done: &chat.DonePayload{
			Text:         "Summary",
			Usage:        usage,
			FinishReason: model.FinishStop,
			Model:        "gpt-4o",
			MessageID:    "msg-1",
		}},
	}}
	srv := newChatServer(t, svc)

	resp, err := http.Post(srv.URL+"/v1/threads/thread-1/messages", "application/json",
		strings.NewReader(`{"content":"summarize","attachment_ids":["att-1"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "gen-1", resp.Header.Get("X-Generation-ID"))

	events := readSSE(t, resp)
	require.Len(t, events, 3)
	assert.Equal(t, "chunk", events[0].name)
	assert.JSONEq(t, `{"text":"Sum"}`, events[0].data)
	assert.Equal(t, "chunk", events[1].name)
	assert.Equal(t, "done", events[2].name)

	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &done))
	assert.Equal(t, "Summary", done["text"])
	assert.Equal(t, "msg-1", done["message_id"])
	assert.Equal(t, "stop", done["finish_reason"])
	assert.NotContains(t, done, "cost_usd")

	assert.Equal(t, "thread-1", svc.threadID)
	assert.Equal(t, "summarize", svc.text)
	assert.Equal(t, []string{"att-1"}, svc.attachments)
}

func TestSendMessage_ErrorEvent(t *testing.T) {
	svc := &fakeChat{events: []chat.Event{
		{Type: chat.EventChunk, Text: "par"},
		{Type: chat.EventError, Error: &chat.ErrorPayload{
			Kind:      model.KindUpstreamDisconnected,
			Message:   "stream ended early",
			Retryable: true,
			MessageID: "msg-2",
			Truncated: true,
		}},
	}}
	srv := newChatServer(t, svc)

	resp, err := http.Post(srv.URL+"/v1/threads/thread-1/messages", "application/json",
		strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readSSE(t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[1].name)
	assert.JSONEq(t, `{"kind":"upstream_disconnected","message":"stream ended early","retryable":true,"message_id":"msg-2","truncated":true}`, events[1].data)
}

func TestSendMessage_SynchronousErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"thread not found", apperrors.ErrThreadNotFound, http.StatusNotFound, "3001"},
		{"attachment not found", apperrors.ErrAttachmentNotFound.WithDetail("att-9"), http.StatusNotFound, "3002"},
		{"model unavailable", apperrors.ErrModelUnavailable, http.StatusUnprocessableEntity, "4001"},
		{"invalid param", apperrors.ErrInvalidParam.WithDetail("empty message"), http.StatusBadRequest, "1001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newChatServer(t, &fakeChat{err: tt.err})

			resp, err := http.Post(srv.URL+"/v1/threads/thread-1/messages", "application/json",
				strings.NewReader(`{"content":"hi"}`))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body struct {
				Code  int `json:"code"`
				Error struct {
					ErrorCode string `json:"error_code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.status, body.Code)
			assert.Equal(t, tt.code, body.Error.ErrorCode)
		})
	}
}

func TestSendMessage_InvalidBody(t *testing.T) {
	svc := &fakeChat{}
	srv := newChatServer(t, svc)

	resp, err := http.Post(srv.URL+"/v1/threads/thread-1/messages", "application/json", strings.NewReader(`{"content":`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, svc.threadID)
}

func TestRegenerate_Streams(t *testing.T) {
	svc := &fakeChat{events: []chat.Event{
		{Type: chat.EventChunk, Text: "again"},
		{Type: chat.EventDone, Done: &chat.DonePayload{Text: "again", FinishReason: model.FinishStop, MessageID: "msg-3"}},
	}}
	srv := newChatServer(t, svc)

	resp, err := http.Post(srv.URL+"/v1/threads/thread-7/regenerate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readSSE(t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, "done", events[1].name)
	assert.Equal(t, "thread-7", svc.threadID)
}

func TestCancelGeneration(t *testing.T) {
	svc := &fakeChat{cancelled: true}
	srv := newChatServer(t, svc)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/threads/thread-1/generation", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data struct {
			Cancelled bool `json:"cancelled"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Data.Cancelled)
	assert.Equal(t, "thread-1", svc.threadID)
}
