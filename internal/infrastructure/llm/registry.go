package llm

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/service"
	"llm-gateway/pkg/logger"
)

// providerOrder 列表输出顺序
var providerOrder = []string{
	config.ProviderOpenAI,
	config.ProviderAnthropic,
	config.ProviderGoogle,
	config.ProviderXAI,
	config.ProviderMistral,
}

// ModelInfo 模型目录条目
type ModelInfo struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	ContextWindow int    `json:"context_window"`
}

// Registry 模型到适配器的映射，启动时构建，之后只读
type Registry struct {
	adapters map[string]service.ProviderAdapter
	models   map[string]service.ProviderAdapter
	// configured 已启用（提供了凭证）的提供商，按注册顺序
	configured []string
}

// NewRegistry 根据配置创建适配器；api_key 为空的提供商视为未启用
func NewRegistry(ctx context.Context, cfg *config.Config) (*Registry, error) {
	var adapters []service.ProviderAdapter
	for _, name := range providerOrder {
		pc, ok := cfg.LLM.Providers[name]
		if !ok || strings.TrimSpace(pc.APIKey) == "" {
			logger.Info(ctx, "llm provider disabled: missing api key", "provider", name)
			continue
		}
		s := SettingsFromConfig(name, pc)
		adapter, err := newAdapter(ctx, s)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return NewRegistryFromAdapters(adapters...), nil
}

func newAdapter(ctx context.Context, s Settings) (service.ProviderAdapter, error) {
	switch s.Name {
	case config.ProviderOpenAI:
		return NewOpenAIAdapter(s), nil
	case config.ProviderAnthropic:
		return NewAnthropicAdapter(s), nil
	case config.ProviderGoogle:
		return NewGeminiAdapter(s), nil
	case config.ProviderXAI, config.ProviderMistral:
		return NewCompatAdapter(ctx, s)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Name)
	}
}

// NewRegistryFromAdapters 直接由适配器构建；同名模型以先注册者为准
func NewRegistryFromAdapters(adapters ...service.ProviderAdapter) *Registry {
	r := &Registry{
		adapters: make(map[string]service.ProviderAdapter, len(adapters)),
		models:   make(map[string]service.ProviderAdapter),
	}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
		r.configured = append(r.configured, a.Provider())
		for _, m := range a.Models() {
			if _, exists := r.models[m]; !exists {
				r.models[m] = a
			}
		}
	}
	return r
}

// Resolve 支持裸模型名或 provider/model 形式
func (r *Registry) Resolve(modelID string) (service.ProviderAdapter, string, error) {
	modelID = strings.TrimSpace(modelID)
	if a, ok := r.models[modelID]; ok {
		return a, modelID, nil
	}
	if provider, name, ok := strings.Cut(modelID, "/"); ok {
		if a, ok := r.adapters[provider]; ok && slices.Contains(a.Models(), name) {
			return a, name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", model.ErrUnavailableModel, modelID)
}

// Adapter 按提供商名查找
func (r *Registry) Adapter(provider string) (service.ProviderAdapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

// Adapters 按固定顺序返回已启用的适配器
func (r *Registry) Adapters() []service.ProviderAdapter {
	out := make([]service.ProviderAdapter, 0, len(r.configured))
	for _, name := range r.configured {
		out = append(out, r.adapters[name])
	}
	return out
}

// Models 列出所有可用模型
func (r *Registry) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(r.models))
	for _, a := range r.Adapters() {
		for _, m := range a.Models() {
			if r.models[m] != a {
				continue
			}
			out = append(out, ModelInfo{ID: m, Provider: a.Provider(), ContextWindow: a.ContextWindow(m)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return providerRank(out[i].Provider) < providerRank(out[j].Provider)
		}
		return false
	})
	return out
}

// KnownProviders 全部内置提供商名称
func KnownProviders() []string {
	return slices.Clone(providerOrder)
}

func providerRank(name string) int {
	if i := slices.Index(providerOrder, name); i >= 0 {
		return i
	}
	return len(providerOrder)
}
