package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"llm-gateway/internal/domain/model"
)

func collect(s *model.DeltaStream) []model.Delta {
	var out []model.Delta
	for d := range s.All() {
		out = append(out, d)
	}
	return out
}

func joinText(deltas []model.Delta) string {
	var text string
	for _, d := range deltas {
		if d.Type == model.DeltaText {
			text += d.Text
		}
	}
	return text
}

func writeSSE(w http.ResponseWriter, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func testSettings(name, baseURL string) Settings {
	return Settings{
		Name:          name,
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Models:        defaultModels[name],
		MaxTokens:     1024,
		Temperature:   0.7,
		Timeout:       5 * time.Second,
		ContextWindow: 8000,
	}
}

func userConversation(text string) *model.Conversation {
	return model.NewConversation([]model.Turn{
		{Role: model.RoleSystem, Text: "be brief"},
		{Role: model.RoleUser, Text: text},
	})
}

// fakeAdapter 可编排健康检查结果的适配器
type fakeAdapter struct {
	baseAdapter
	healthErr error
}

func newFakeAdapter(name string, models ...string) *fakeAdapter {
	return &fakeAdapter{baseAdapter: baseAdapter{settings: Settings{Name: name, Models: models, ContextWindow: 1000, MaxTokens: 100}}}
}

func (f *fakeAdapter) StreamGenerate(context.Context, *model.Conversation, string) *model.DeltaStream {
	return model.NewDeltaStream(func(yield func(model.Delta) bool) {
		yield(model.DoneDelta(model.FinishStop, nil))
	})
}

func (f *fakeAdapter) HealthCheck(context.Context) error { return f.healthErr }
