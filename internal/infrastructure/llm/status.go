package llm

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/service"
	"llm-gateway/pkg/logger"
	"llm-gateway/pkg/metrics"
)

// StatusTracker 汇总提供商可用性：线上请求结果与周期性健康检查
type StatusTracker struct {
	registry *Registry
	cfg      config.StatusConfig
	now      func() time.Time

	mu       sync.RWMutex
	statuses map[string]*service.ProviderStatus
}

// NewStatusTracker 为已启用的提供商建立状态条目
func NewStatusTracker(registry *Registry, cfg config.StatusConfig) *StatusTracker {
	t := &StatusTracker{
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
		statuses: make(map[string]*service.ProviderStatus),
	}
	for _, a := range registry.Adapters() {
		t.statuses[a.Provider()] = &service.ProviderStatus{
			Provider:   a.Provider(),
			Configured: true,
			Models:     a.Models(),
		}
	}
	return t
}

// RecordSuccess 一次成功的生成刷新可用状态
func (t *StatusTracker) RecordSuccess(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.statuses[provider]
	if !ok {
		return
	}
	now := t.now()
	st.Available = true
	st.LastChecked = &now
	st.LastSuccess = &now
	st.Error = ""
	metrics.ProviderHealthy.WithLabelValues(provider).Set(1)
}

// RecordFailure 记录失败原因；单次请求失败不直接判定为不可用
func (t *StatusTracker) RecordFailure(provider string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.statuses[provider]
	if !ok || err == nil {
		return
	}
	now := t.now()
	st.LastChecked = &now
	st.Error = err.Error()
}

// Check 对单个提供商执行健康检查
func (t *StatusTracker) Check(ctx context.Context, provider string) bool {
	adapter, ok := t.registry.Adapter(provider)
	if !ok {
		return false
	}
	if t.cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.CheckTimeout)
		defer cancel()
	}
	err := adapter.HealthCheck(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.statuses[provider]
	now := t.now()
	st.LastChecked = &now
	if err != nil {
		st.Available = false
		st.Error = err.Error()
		metrics.ProviderHealthy.WithLabelValues(provider).Set(0)
		logger.Warn(ctx, "llm provider health check failed", "provider", provider, "error", err.Error())
		return false
	}
	st.Available = true
	st.LastSuccess = &now
	st.Error = ""
	metrics.ProviderHealthy.WithLabelValues(provider).Set(1)
	logger.Info(ctx, "llm provider healthy", "provider", provider)
	return true
}

// CheckAll 并发检查全部提供商
func (t *StatusTracker) CheckAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range t.registry.Adapters() {
		provider := a.Provider()
		g.Go(func() error {
			t.Check(gctx, provider)
			return nil
		})
	}
	_ = g.Wait()
}

// checkStale 重新检查长时间没有成功记录的提供商
func (t *StatusTracker) checkStale(ctx context.Context) {
	now := t.now()
	var stale []string
	t.mu.RLock()
	for name, st := range t.statuses {
		if st.LastSuccess == nil || now.Sub(*st.LastSuccess) >= t.cfg.StaleAfter {
			stale = append(stale, name)
		}
	}
	t.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range stale {
		g.Go(func() error {
			t.Check(gctx, name)
			return nil
		})
	}
	_ = g.Wait()
}

// Run 启动时全量检查，之后按间隔复查过期条目，直到 ctx 结束
func (t *StatusTracker) Run(ctx context.Context) {
	t.CheckAll(ctx)
	interval := t.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkStale(ctx)
		}
	}
}

// Statuses 返回全部内置提供商的状态，未启用的标记 configured=false
func (t *StatusTracker) Statuses() []service.ProviderStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := KnownProviders()
	for _, a := range t.registry.Adapters() {
		if !slices.Contains(names, a.Provider()) {
			names = append(names, a.Provider())
		}
	}
	out := make([]service.ProviderStatus, 0, len(names))
	for _, name := range names {
		st, ok := t.statuses[name]
		if !ok {
			out = append(out, service.ProviderStatus{Provider: name, Models: []string{}})
			continue
		}
		cp := *st
		cp.Models = slices.Clone(st.Models)
		out = append(out, cp)
	}
	return out
}

// IsAvailable 最近一次观察是否健康
func (t *StatusTracker) IsAvailable(provider string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[provider]
	return ok && st.Available
}
