package llm

import (
	"net"
	"net/http"
	"slices"
	"time"

	"llm-gateway/internal/config"
)

// defaultModels 各提供商的默认模型目录，配置中的 models 可覆盖
var defaultModels = map[string][]string{
	config.ProviderOpenAI:    {"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "o1", "o3-mini"},
	config.ProviderAnthropic: {"claude-sonnet-4-20250514", "claude-haiku-4-20250414"},
	config.ProviderGoogle:    {"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-2.5-pro-preview-06-05"},
	config.ProviderXAI:       {"grok-3", "grok-3-mini"},
	config.ProviderMistral:   {"mistral-large-latest", "mistral-small-latest", "codestral-latest"},
}

// Settings 单个提供商适配器的运行参数
type Settings struct {
	Name          string
	APIKey        string
	BaseURL       string
	Models        []string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	ContextWindow int
}

// SettingsFromConfig 合并配置与默认模型目录；temperature 的默认值由配置加载器提供，0 是合法取值
func SettingsFromConfig(name string, pc config.ProviderConfig) Settings {
	models := pc.Models
	if len(models) == 0 {
		models = defaultModels[name]
	}
	s := Settings{
		Name:          name,
		APIKey:        pc.APIKey,
		BaseURL:       pc.BaseURL,
		Models:        slices.Clone(models),
		MaxTokens:     pc.MaxTokens,
		Temperature:   pc.Temperature,
		Timeout:       pc.Timeout,
		ContextWindow: pc.ContextWindow,
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = 4096
	}
	if s.Timeout <= 0 {
		s.Timeout = 120 * time.Second
	}
	if s.ContextWindow <= 0 {
		s.ContextWindow = 128000
	}
	return s
}

// baseAdapter 各适配器共享的目录信息
type baseAdapter struct {
	settings Settings
}

func (b *baseAdapter) Provider() string { return b.settings.Name }

func (b *baseAdapter) Models() []string { return slices.Clone(b.settings.Models) }

func (b *baseAdapter) ContextWindow(string) int { return b.settings.ContextWindow }

func (b *baseAdapter) MaxOutputTokens() int { return b.settings.MaxTokens }

// newHTTPClient 流式请求不设置整体超时，只限制等待响应头的时间
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Transport: transport}
}
