package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/domain/model"
)

func TestActiveGenerations_SupersedesPrevious(t *testing.T) {
	active := NewActiveGenerations()
	first := newGeneration(context.Background(), "t1", testModel)
	require.NoError(t, active.Acquire(context.Background(), first, time.Second))

	second := newGeneration(context.Background(), "t1", testModel)
	go func() {
		<-first.Context().Done()
		active.Release(first)
		first.finish()
	}()
	require.NoError(t, active.Acquire(context.Background(), second, time.Second))

	ce, ok := model.AsCancellation(context.Cause(first.Context()))
	require.True(t, ok)
	assert.Equal(t, model.CauseSuperseded, ce.Cause)

	cur, ok := active.Get("t1")
	require.True(t, ok)
	assert.Same(t, second, cur)
}

func TestActiveGenerations_BusyWhenPreviousHangs(t *testing.T) {
	active := NewActiveGenerations()
	first := newGeneration(context.Background(), "t1", testModel)
	require.NoError(t, active.Acquire(context.Background(), first, time.Second))

	second := newGeneration(context.Background(), "t1", testModel)
	err := active.Acquire(context.Background(), second, 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrThreadBusy))
	assert.Equal(t, 1, active.Len())
}

func TestActiveGenerations_ReleaseOnlyOwner(t *testing.T) {
	active := NewActiveGenerations()
	owner := newGeneration(context.Background(), "t1", testModel)
	stranger := newGeneration(context.Background(), "t1", testModel)
	require.NoError(t, active.Acquire(context.Background(), owner, time.Second))

	active.Release(stranger)
	assert.Equal(t, 1, active.Len())
	active.Release(owner)
	assert.Equal(t, 0, active.Len())
}

func TestActiveGenerations_IndependentThreads(t *testing.T) {
	active := NewActiveGenerations()
	require.NoError(t, active.Acquire(context.Background(), newGeneration(context.Background(), "t1", testModel), time.Second))
	require.NoError(t, active.Acquire(context.Background(), newGeneration(context.Background(), "t2", testModel), time.Second))
	assert.Equal(t, 2, active.Len())
	assert.False(t, active.Cancel("t3", model.CauseExplicit))
}

func TestActiveGenerations_Drain(t *testing.T) {
	active := NewActiveGenerations()
	gen := newGeneration(context.Background(), "t1", testModel)
	require.NoError(t, active.Acquire(context.Background(), gen, time.Second))
	go func() {
		<-gen.Context().Done()
		active.Release(gen)
		gen.finish()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, active.Drain(ctx))
	ce, ok := model.AsCancellation(context.Cause(gen.Context()))
	require.True(t, ok)
	assert.Equal(t, model.CauseExplicit, ce.Cause)
}

func TestActiveGenerations_ReserveOrdersByCall(t *testing.T) {
	active := NewActiveGenerations()
	first := newGeneration(context.Background(), "t1", testModel)
	second := newGeneration(context.Background(), "t1", testModel)
	third := newGeneration(context.Background(), "t1", testModel)
	active.Reserve(first)
	active.Reserve(second)
	active.Reserve(third)

	assert.Error(t, first.Context().Err())
	assert.Error(t, second.Context().Err())
	assert.NoError(t, third.Context().Err())

	// second 在等待中被取代后先退出，third 仍要等 first
	active.Release(second)
	err := active.Await(context.Background(), third, 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrThreadBusy))

	active.Release(first)
	require.NoError(t, active.Await(context.Background(), third, time.Second))

	cur, ok := active.Get("t1")
	require.True(t, ok)
	assert.Same(t, third, cur)
	active.Release(third)
	assert.Equal(t, 0, active.Len())
}

func TestActiveGenerations_AwaitCancelledBySuccessor(t *testing.T) {
	active := NewActiveGenerations()
	first := newGeneration(context.Background(), "t1", testModel)
	second := newGeneration(context.Background(), "t1", testModel)
	active.Reserve(first)
	active.Reserve(second)

	errc := make(chan error, 1)
	go func() { errc <- active.Await(second.Context(), second, time.Second) }()
	active.Reserve(newGeneration(context.Background(), "t1", testModel))

	select {
	case err := <-errc:
		ce, ok := model.AsCancellation(err)
		require.True(t, ok)
		assert.Equal(t, model.CauseSuperseded, ce.Cause)
	case <-time.After(time.Second):
		t.Fatal("await did not observe supersede")
	}
}

func TestGeneration_Transitions(t *testing.T) {
	gen := newGeneration(context.Background(), "t1", testModel)
	assert.Equal(t, StateIdle, gen.State())
	assert.True(t, gen.transition(StateDispatched))
	assert.True(t, gen.transition(StateStreaming))
	assert.False(t, gen.transition(StateDispatched))
	assert.True(t, gen.transition(StateCompleted))
	assert.False(t, gen.transition(StateFailed))
	assert.Equal(t, "completed", gen.State().Status())
}

func TestGeneration_CancelKeepsFirstCause(t *testing.T) {
	gen := newGeneration(context.Background(), "t1", testModel)
	gen.Cancel(model.CauseExplicit)
	gen.Cancel(model.CauseSuperseded)
	ce, ok := model.AsCancellation(context.Cause(gen.Context()))
	require.True(t, ok)
	assert.Equal(t, model.CauseExplicit, ce.Cause)
}

func TestGeneration_SurvivesParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	gen := newGeneration(parent, "t1", testModel)
	cancel()
	assert.NoError(t, gen.Context().Err())
}
