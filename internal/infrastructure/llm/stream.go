package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"llm-gateway/internal/domain/model"
	"llm-gateway/pkg/metrics"
	"llm-gateway/pkg/tracer"
)

// streamResult 上游流正常结束时的汇总
type streamResult struct {
	FinishReason string
	Usage        *model.Usage
	// Completed 是否收到提供商的完成标记
	Completed bool
}

// produceFunc 读取上游并通过 emit 推送文本；emit 返回 false 时必须尽快返回
type produceFunc func(ctx context.Context, emit func(text string) bool) (streamResult, error)

// newDeltaStream 把各适配器的读取循环包装为统一的增量流：
// 任何情况下都以恰好一个终止增量结束，消费者提前退出后不再回调
func newDeltaStream(ctx context.Context, provider, modelID string, mapErr errorMapper, produce produceFunc) *model.DeltaStream {
	return model.NewDeltaStream(func(yield func(model.Delta) bool) {
		ctx, span := tracer.Start(ctx, "llm."+provider+".stream")
		span.SetAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", modelID),
		)
		defer span.End()
		start := time.Now()

		emitted := false
		stopped := false
		emit := func(text string) bool {
			if stopped || ctx.Err() != nil {
				return false
			}
			if text == "" {
				return true
			}
			emitted = true
			if !yield(model.TextDelta(text)) {
				stopped = true
				return false
			}
			return true
		}

		res, err := produce(ctx, emit)
		span.SetAttributes(attribute.Int64("llm.duration_ms", time.Since(start).Milliseconds()))
		if stopped {
			return
		}

		var terminal model.Delta
		switch {
		case ctx.Err() != nil:
			terminal = model.ErrorDelta(cancelledError(ctx, provider))
		case err != nil:
			terminal = model.ErrorDelta(mapErr(err, emitted))
		case !res.Completed:
			kind := model.KindUpstreamUnavailable
			if emitted {
				kind = model.KindUpstreamDisconnected
			}
			terminal = model.ErrorDelta(model.NewProviderError(provider, "", kind, "stream ended without completion marker", nil))
		default:
			reason := model.FinishStop
			if res.FinishReason != "" {
				reason = model.NormalizeFinishReason(res.FinishReason)
			}
			terminal = model.DoneDelta(reason, res.Usage)
		}

		recordCall(provider, modelID, terminal)
		if terminal.Err != nil {
			tracer.RecordError(span, terminal.Err, attribute.String("llm.error_kind", string(terminal.Err.Kind)))
		}
		yield(terminal)
	})
}

func recordCall(provider, modelID string, terminal model.Delta) {
	status := "success"
	if terminal.Err != nil {
		status = string(terminal.Err.Kind)
	}
	metrics.LLMCallTotal.WithLabelValues(provider, modelID, status).Inc()
	if u := terminal.Usage; u != nil {
		metrics.LLMTokensUsed.WithLabelValues(provider, modelID, "prompt").Add(float64(u.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(provider, modelID, "completion").Add(float64(u.CompletionTokens))
	}
}

// errorStream 在发起请求前就已失败的流
func errorStream(provider string, err *model.ProviderError) *model.DeltaStream {
	if err.Provider == "" {
		err.Provider = provider
	}
	return model.NewDeltaStream(func(yield func(model.Delta) bool) {
		yield(model.ErrorDelta(err))
	})
}
