package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/service"
)

type memUsageRepo struct {
	events []*entity.LLMUsageEvent
	err    error
}

func (m *memUsageRepo) Create(_ context.Context, e *entity.LLMUsageEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

type memRecoveryRepo struct {
	recs []*entity.GenerationRecovery
}

func (m *memRecoveryRepo) Create(_ context.Context, r *entity.GenerationRecovery) error {
	m.recs = append(m.recs, r)
	return nil
}

func TestRecorderRecord(t *testing.T) {
	repo := &memUsageRepo{}
	rec := NewRecorder(repo)
	cost := 0.0042
	done := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := rec.Record(context.Background(), service.LLMUsageInput{
		GenerationID:     "gen-1",
		ThreadID:         " thread-1 ",
		TurnID:           "turn-1",
		Provider:         "anthropic",
		Model:            "claude-sonnet-4-20250514",
		PromptTokens:     100,
		CompletionTokens: 20,
		CostUSD:          &cost,
		DurationMs:       1200,
		CompletedAt:      done,
	})
	require.NoError(t, err)
	require.Len(t, repo.events, 1)

	evt := repo.events[0]
	assert.Equal(t, "thread-1", evt.ThreadID)
	assert.Equal(t, "gen-1", evt.GenerationID)
	assert.Equal(t, 100, evt.TokensPrompt)
	assert.Equal(t, 20, evt.TokensCompletion)
	assert.Equal(t, &cost, evt.CostUSD)
	assert.Equal(t, done, evt.CreatedAt)
}

func TestRecorderRejectsInvalidInput(t *testing.T) {
	repo := &memUsageRepo{}
	rec := NewRecorder(repo)

	assert.Error(t, rec.Record(context.Background(), service.LLMUsageInput{GenerationID: "gen-1"}))
	assert.Error(t, rec.Record(context.Background(), service.LLMUsageInput{
		GenerationID: "gen-1", ThreadID: "t", PromptTokens: -1,
	}))
	assert.Empty(t, repo.events)
}

func TestRecorderPropagatesRepoError(t *testing.T) {
	repo := &memUsageRepo{err: errors.New("db down")}
	err := NewRecorder(repo).Record(context.Background(), service.LLMUsageInput{GenerationID: "g", ThreadID: "t"})
	assert.EqualError(t, err, "db down")
}

func TestRecoveryWriterStore(t *testing.T) {
	repo := &memRecoveryRepo{}
	w := NewRecoveryWriter(repo)

	err := w.Store(context.Background(), service.RecoveryInput{
		GenerationID:     "gen-9",
		ThreadID:         "thread-9",
		Model:            "gpt-4o",
		Content:          "the answer",
		PromptTokens:     7,
		CompletionTokens: 3,
		LastError:        "persistence append_assistant_turn: timeout",
	})
	require.NoError(t, err)
	require.Len(t, repo.recs, 1)
	assert.Equal(t, "the answer", repo.recs[0].Content)

	var usage map[string]int
	require.NoError(t, json.Unmarshal(repo.recs[0].Usage, &usage))
	assert.Equal(t, 7, usage["prompt_tokens"])
	assert.Equal(t, 3, usage["completion_tokens"])
}
