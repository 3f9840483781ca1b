package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"llm-gateway/internal/config"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := newRetryPolicy(5, config.BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 3})
	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 300*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 900*time.Millisecond, p.NextDelay(3))
	assert.Equal(t, time.Second, p.NextDelay(4))
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := newRetryPolicy(0, config.BackoffConfig{Initial: 10 * time.Millisecond})
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, 1.0, p.Multiplier)
	assert.Equal(t, 10*time.Millisecond, p.MaxDelay)
}

func TestRetryPolicy_Execute(t *testing.T) {
	p := newRetryPolicy(3, config.BackoffConfig{Initial: time.Millisecond, Multiplier: 2, Max: 2 * time.Millisecond})

	calls, retries := 0, 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, func(int, error) { retries++ })
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)

	calls = 0
	err = p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	}, nil)
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	p := newRetryPolicy(5, config.BackoffConfig{Initial: time.Hour, Max: time.Hour, Multiplier: 1})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
