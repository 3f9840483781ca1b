package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyProvider   llmCtxKey = "llm_provider"
	llmCtxKeyModel      llmCtxKey = "llm_model"
	llmCtxKeyGeneration llmCtxKey = "llm_generation"
)

func WithProvider(ctx context.Context, provider string) context.Context {
	return withTrimmed(ctx, llmCtxKeyProvider, provider)
}

func WithModel(ctx context.Context, model string) context.Context {
	return withTrimmed(ctx, llmCtxKeyModel, model)
}

func WithGenerationID(ctx context.Context, id string) context.Context {
	return withTrimmed(ctx, llmCtxKeyGeneration, id)
}

// WithProviderModel 同时注入提供商与模型，适配器据此打点
func WithProviderModel(ctx context.Context, provider, model string) context.Context {
	return WithModel(WithProvider(ctx, provider), model)
}

func ProviderFromContext(ctx context.Context) string {
	return valueOrUnknown(ctx, llmCtxKeyProvider)
}

func ModelFromContext(ctx context.Context) string {
	return valueOrUnknown(ctx, llmCtxKeyModel)
}

func GenerationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(llmCtxKeyGeneration).(string)
	return s
}

func withTrimmed(ctx context.Context, key llmCtxKey, value string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOrUnknown(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
