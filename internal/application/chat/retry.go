package chat

import (
	"context"
	"math"
	"time"

	"llm-gateway/internal/config"
)

// RetryPolicy 指数退避
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

func newRetryPolicy(attempts int, b config.BackoffConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: b.Initial,
		Multiplier:   b.Multiplier,
		MaxDelay:     b.Max,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// NextDelay 第 attempt 次（从 1 开始）失败后的等待时间
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute 至多执行 MaxAttempts 次 fn；onRetry 在每次重试前调用
func (p RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if !sleep(ctx, p.NextDelay(attempt)) {
			return lastErr
		}
	}
	return lastErr
}

// sleep 可被取消的等待，被取消时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
