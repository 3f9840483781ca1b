package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/config"
)

func TestStatusTracker(t *testing.T) {
	healthy := newFakeAdapter("openai", "gpt-4o")
	broken := newFakeAdapter("anthropic", "claude")
	broken.healthErr = errors.New("401 unauthorized")
	tracker := NewStatusTracker(NewRegistryFromAdapters(healthy, broken), config.StatusConfig{
		CheckTimeout: time.Second,
		StaleAfter:   time.Hour,
	})

	tracker.CheckAll(context.Background())
	assert.True(t, tracker.IsAvailable("openai"))
	assert.False(t, tracker.IsAvailable("anthropic"))

	statuses := tracker.Statuses()
	require.Len(t, statuses, 5)
	assert.Equal(t, "openai", statuses[0].Provider)
	assert.True(t, statuses[0].Configured)
	assert.NotNil(t, statuses[0].LastSuccess)
	assert.Equal(t, "401 unauthorized", statuses[1].Error)
	assert.False(t, statuses[2].Configured)

	tracker.RecordSuccess("anthropic")
	assert.True(t, tracker.IsAvailable("anthropic"))
	tracker.RecordFailure("anthropic", errors.New("boom"))
	assert.True(t, tracker.IsAvailable("anthropic"))
	assert.Equal(t, "boom", tracker.Statuses()[1].Error)
}

func TestStatusTracker_CheckStale(t *testing.T) {
	a := newFakeAdapter("openai", "gpt-4o")
	tracker := NewStatusTracker(NewRegistryFromAdapters(a), config.StatusConfig{StaleAfter: time.Hour})
	past := time.Now().Add(-2 * time.Hour)
	tracker.now = func() time.Time { return past }
	tracker.RecordSuccess("openai")

	tracker.now = time.Now
	a.healthErr = errors.New("down")
	tracker.checkStale(context.Background())
	assert.False(t, tracker.IsAvailable("openai"))
}
