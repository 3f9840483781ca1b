package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/domain/service"
	"llm-gateway/internal/infrastructure/messaging"
)

type captureRecorder struct {
	got []service.LLMUsageInput
	err error
}

func (r *captureRecorder) Record(_ context.Context, in service.LLMUsageInput) error {
	r.got = append(r.got, in)
	return r.err
}

type captureRecoveries struct {
	got []service.RecoveryInput
}

func (s *captureRecoveries) Store(_ context.Context, in service.RecoveryInput) error {
	s.got = append(s.got, in)
	return nil
}

func TestUsageHandler(t *testing.T) {
	cost := 0.0042
	completed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg, err := messaging.NewMessage("gen-1", messaging.TypeGenerationCompleted, "thread-1", messaging.UsagePayloadFrom(service.LLMUsageInput{
		GenerationID:     "gen-1",
		ThreadID:         "thread-1",
		TurnID:           "turn-9",
		Provider:         "openai",
		Model:            "gpt-4o",
		PromptTokens:     30,
		CompletionTokens: 12,
		CostUSD:          &cost,
		CompletedAt:      completed,
	}))
	require.NoError(t, err)

	rec := &captureRecorder{}
	require.NoError(t, usageHandler(rec)(context.Background(), msg))
	require.Len(t, rec.got, 1)
	assert.Equal(t, "turn-9", rec.got[0].TurnID)
	assert.Equal(t, 12, rec.got[0].CompletionTokens)
	require.NotNil(t, rec.got[0].CostUSD)
	assert.InDelta(t, cost, *rec.got[0].CostUSD, 1e-9)
	assert.True(t, completed.Equal(rec.got[0].CompletedAt))
}

func TestUsageHandler_PropagatesFailure(t *testing.T) {
	msg, err := messaging.NewMessage("gen-2", messaging.TypeGenerationCompleted, "thread-1", messaging.UsagePayload{ThreadID: "thread-1"})
	require.NoError(t, err)

	rec := &captureRecorder{err: errors.New("db down")}
	err = usageHandler(rec)(context.Background(), msg)
	assert.EqualError(t, err, "db down")
	// 载荷缺少生成 ID 时取消息 ID
	assert.Equal(t, "gen-2", rec.got[0].GenerationID)
}

func TestRecoveryHandler(t *testing.T) {
	msg, err := messaging.NewMessage("gen-3", messaging.TypeGenerationPersistFail, "thread-1", messaging.RecoveryPayloadFrom(service.RecoveryInput{
		GenerationID: "gen-3",
		ThreadID:     "thread-1",
		Model:        "gpt-4o",
		Content:      "full reply text",
		LastError:    "storage unavailable",
	}))
	require.NoError(t, err)

	store := &captureRecoveries{}
	require.NoError(t, recoveryHandler(store)(context.Background(), msg))
	require.Len(t, store.got, 1)
	assert.Equal(t, "full reply text", store.got[0].Content)
	assert.Equal(t, "storage unavailable", store.got[0].LastError)
}
