package chat

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/service"
	"llm-gateway/pkg/logger"
	"llm-gateway/pkg/metrics"
	"llm-gateway/pkg/tracer"
)

// Coordinator 驱动单个生成的状态机：调度适配器、转发增量、处理超时与取消，
// 成功后先持久化再发出 done。
type Coordinator struct {
	store     service.TurnStore
	publisher service.GenerationEventPublisher
	status    service.ProviderStatusRecorder
	pricer    *Pricer
	sem       *semaphore.Weighted
	cfg       config.GatewayConfig
	now       func() time.Time
}

// NewCoordinator publisher、status、pricer 可以为 nil
func NewCoordinator(
	cfg config.GatewayConfig,
	store service.TurnStore,
	publisher service.GenerationEventPublisher,
	status service.ProviderStatusRecorder,
	pricer *Pricer,
) *Coordinator {
	limit := cfg.MaxConcurrentGenerations
	if limit <= 0 {
		limit = 256
	}
	return &Coordinator{
		store:     store,
		publisher: publisher,
		status:    status,
		pricer:    pricer,
		sem:       semaphore.NewWeighted(limit),
		cfg:       cfg,
		now:       time.Now,
	}
}

// run 单次生成的运行时数据
type run struct {
	gen      *Generation
	adapter  service.ProviderAdapter
	provider string
	modelID  string
	emit     func(Event) bool
	start    time.Time
	chunks   int
}

// Run 执行生成直到终止状态，并通过 emit 发出恰好一个终止事件
func (c *Coordinator) Run(gen *Generation, adapter service.ProviderAdapter, modelID string, emit func(Event) bool) State {
	r := &run{
		gen:      gen,
		adapter:  adapter,
		provider: adapter.Provider(),
		modelID:  modelID,
		emit:     emit,
		start:    c.now(),
	}

	ctx := service.WithGenerationID(service.WithProviderModel(gen.Context(), r.provider, modelID), gen.ID)
	ctx = logger.WithThread(ctx, gen.ThreadID, gen.ID)
	ctx, span := tracer.Start(ctx, "chat.Coordinator.Run")
	span.SetAttributes(
		attribute.String("thread_id", gen.ThreadID),
		attribute.String("generation_id", gen.ID),
		attribute.String("llm.provider", r.provider),
		attribute.String("llm.model", modelID),
	)
	defer span.End()

	state := c.execute(ctx, r)
	span.SetAttributes(attribute.String("generation.status", state.Status()))

	metrics.GenerationTotal.WithLabelValues(r.provider, modelID, state.Status()).Inc()
	metrics.GenerationDuration.WithLabelValues(r.provider, modelID).Observe(c.now().Sub(r.start).Seconds())
	logger.Info(ctx, "generation finished",
		"status", state.Status(),
		"chunks", r.chunks,
		"duration_ms", c.now().Sub(r.start).Milliseconds(),
	)
	return state
}

func (c *Coordinator) execute(ctx context.Context, r *run) State {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return c.cancelled(ctx, r, causeOf(ctx))
	}
	defer c.sem.Release(1)

	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	if total := c.cfg.Timeouts.Total; total > 0 {
		t := time.AfterFunc(total, func() {
			cancelRun(&model.CancellationError{Cause: model.CauseTimeout})
		})
		defer t.Stop()
	}
	stall := newStallWatch(c.cfg.Timeouts.Stall, func() {
		cancelRun(&model.CancellationError{Cause: model.CauseStalled})
	})
	defer stall.stop()

	terminal := c.stream(runCtx, r, stall)

	if ce := causeOf(runCtx); ce != nil {
		if ce.IsTimeout() {
			return c.timedOut(ctx, r, ce)
		}
		return c.cancelled(ctx, r, ce)
	}

	if terminal.Type == model.DeltaDone {
		return c.complete(ctx, r, terminal)
	}
	return c.fail(ctx, r, terminal.Err)
}

// stream 调度适配器并转发文本增量；尚未转发任何内容时对可重试错误重新调度
func (c *Coordinator) stream(ctx context.Context, r *run, stall *stallWatch) model.Delta {
	policy := newRetryPolicy(c.cfg.ProviderRetry.MaxRetries+1, c.cfg.ProviderRetry.Backoff)

	for attempt := 1; ; attempt++ {
		r.gen.transition(StateDispatched)
		stall.reset()

		terminal := model.Delta{}
		for d := range r.adapter.StreamGenerate(ctx, r.gen.Conversation, r.modelID).All() {
			stall.reset()
			r.gen.transition(StateStreaming)
			if d.IsTerminal() {
				terminal = d
				break
			}
			if d.Text == "" {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			if r.chunks == 0 {
				metrics.TimeToFirstChunk.WithLabelValues(r.provider, r.modelID).Observe(c.now().Sub(r.start).Seconds())
			}
			r.chunks++
			r.gen.appendText(d.Text)
			if !r.emit(chunkEvent(d.Text)) {
				r.gen.Cancel(model.CauseClientDisconnected)
				break
			}
		}

		if ctx.Err() != nil {
			return terminal
		}
		if terminal.Type == "" {
			terminal = model.ErrorDelta(model.NewProviderError(r.provider, "", model.KindUnknown, "stream ended without a terminal delta", nil))
		}

		pe := terminal.Err
		if terminal.Type != model.DeltaError || pe == nil || !pe.Retryable || r.chunks > 0 || attempt >= policy.MaxAttempts {
			return terminal
		}

		metrics.ProviderRetries.WithLabelValues(r.provider, string(pe.Kind)).Inc()
		delay := policy.NextDelay(attempt)
		logger.Warn(ctx, "retrying provider after retryable error",
			"attempt", attempt,
			"kind", pe.Kind,
			"delay_ms", delay.Milliseconds(),
		)
		stall.reset()
		if !sleep(ctx, delay) {
			return terminal
		}
	}
}

// complete 先持久化，成功后才发出 done
func (c *Coordinator) complete(ctx context.Context, r *run, terminal model.Delta) State {
	text := r.gen.AccumulatedText()
	usage := terminal.Usage

	var cost *float64
	if c.pricer != nil {
		var err error
		cost, err = c.pricer.Cost(ctx, r.modelID, usage, MediaTokensFor(r.gen.Conversation))
		if err != nil {
			logger.Warn(ctx, "pricing lookup failed", "error", err.Error())
		}
	}

	turnID, err := c.persist(ctx, service.AssistantTurn{
		ThreadID:     r.gen.ThreadID,
		Text:         text,
		Usage:        usage,
		Model:        r.modelID,
		FinishReason: terminal.FinishReason,
		CostUSD:      cost,
	})
	if err != nil {
		r.gen.transition(StateFailed)
		c.recover(ctx, r, text, usage, err)
		r.emit(errorEvent(model.KindStorageUnavailable, "the response could not be saved", true))
		return StateFailed
	}

	r.gen.transition(StateCompleted)
	r.emit(doneEvent(DonePayload{
		Text:         text,
		Usage:        usage,
		FinishReason: terminal.FinishReason,
		Model:        r.modelID,
		MessageID:    turnID,
		CostUSD:      cost,
	}))

	if c.status != nil {
		c.status.RecordSuccess(r.provider)
	}
	c.publishUsage(ctx, r, turnID, usage, cost, false)
	return StateCompleted
}

// fail 丢弃部分文本；上游在输出后断开且开启了 persist_truncated_partial 时以 truncated 保存，
// 重新生成除外
func (c *Coordinator) fail(ctx context.Context, r *run, pe *model.ProviderError) State {
	r.gen.transition(StateFailed)
	if pe == nil {
		pe = model.NewProviderError(r.provider, "", model.KindUnknown, "generation failed", nil)
	}
	if c.status != nil {
		c.status.RecordFailure(r.provider, pe)
	}
	logger.Warn(ctx, "generation failed",
		"kind", pe.Kind,
		"provider_code", pe.ProviderCode,
		"error", pe.Error(),
	)

	ev := errorEvent(pe.Kind, clientMessage(pe), pe.Retryable)
	text := r.gen.AccumulatedText()
	if pe.Kind == model.KindUpstreamDisconnected && c.cfg.PersistTruncatedPartial && text != "" && r.gen.Replaces == "" {
		turnID, err := c.persist(ctx, service.AssistantTurn{
			ThreadID:     r.gen.ThreadID,
			Text:         text,
			Truncated:    true,
			Model:        r.modelID,
			FinishReason: model.FinishError,
		})
		if err != nil {
			c.recover(ctx, r, text, nil, err)
		} else {
			ev.Error.MessageID = turnID
			ev.Error.Truncated = true
			c.publishUsage(ctx, r, turnID, nil, nil, true)
		}
	}
	r.emit(ev)
	return StateFailed
}

// timedOut 总时长或停滞超时，不保存任何内容
func (c *Coordinator) timedOut(ctx context.Context, r *run, ce *model.CancellationError) State {
	r.gen.transition(StateFailed)
	if c.status != nil {
		c.status.RecordFailure(r.provider, ce)
	}
	logger.Warn(ctx, "generation timed out", "cause", ce.Cause, "chunks", r.chunks)
	r.emit(errorEvent(model.KindTimeout, "generation "+string(ce.Cause), true))
	return StateFailed
}

// cancelled 不保存；终止事件尽量送达仍在监听的消费者
func (c *Coordinator) cancelled(ctx context.Context, r *run, ce *model.CancellationError) State {
	r.gen.transition(StateCancelled)
	logger.Info(ctx, "generation cancelled", "cause", ce.Cause, "chunks", r.chunks)
	r.emit(errorEvent(model.KindCancelled, "generation cancelled: "+string(ce.Cause), false))
	return StateCancelled
}

// persist 在脱离取消的上下文中带重试写入助手消息
func (c *Coordinator) persist(ctx context.Context, turn service.AssistantTurn) (string, error) {
	ctx = context.WithoutCancel(ctx)
	policy := newRetryPolicy(c.cfg.Persistence.MaxAttempts, c.cfg.Persistence.Backoff)

	var turnID string
	err := policy.Execute(ctx, func(ctx context.Context) error {
		if c.cfg.Persistence.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Persistence.Timeout)
			defer cancel()
		}
		id, err := c.store.AppendAssistantTurn(ctx, turn)
		if err != nil {
			return err
		}
		turnID = id
		return nil
	}, func(attempt int, err error) {
		metrics.PersistenceRetries.Inc()
		logger.Warn(ctx, "assistant turn write failed, retrying", "attempt", attempt, "error", err.Error())
	})
	if err != nil {
		logger.Error(ctx, "assistant turn write failed", err, "attempts", policy.MaxAttempts)
		return "", err
	}
	return turnID, nil
}

// recover 写入失败的文本进入恢复队列；队列不可用时完整记录到日志
func (c *Coordinator) recover(ctx context.Context, r *run, text string, usage *model.Usage, cause error) {
	ctx = context.WithoutCancel(ctx)
	in := service.RecoveryInput{
		GenerationID: r.gen.ID,
		ThreadID:     r.gen.ThreadID,
		Model:        r.modelID,
		Content:      text,
		LastError:    cause.Error(),
	}
	if usage != nil {
		in.PromptTokens = usage.PromptTokens
		in.CompletionTokens = usage.CompletionTokens
	}
	if c.publisher != nil {
		err := c.publisher.PublishRecovery(ctx, in)
		if err == nil {
			return
		}
		logger.Error(ctx, "failed to queue generation for recovery", err)
	}
	logger.Error(ctx, "unsaved generation content", cause, "content", text)
}

func (c *Coordinator) publishUsage(ctx context.Context, r *run, turnID string, usage *model.Usage, cost *float64, truncated bool) {
	if c.publisher == nil {
		return
	}
	in := service.LLMUsageInput{
		GenerationID: r.gen.ID,
		ThreadID:     r.gen.ThreadID,
		TurnID:       turnID,
		Provider:     r.provider,
		Model:        r.modelID,
		CostUSD:      cost,
		DurationMs:   int(c.now().Sub(r.start).Milliseconds()),
		Truncated:    truncated,
		CompletedAt:  c.now(),
	}
	if usage != nil {
		in.PromptTokens = usage.PromptTokens
		in.CompletionTokens = usage.CompletionTokens
	}
	if err := c.publisher.PublishUsage(context.WithoutCancel(ctx), in); err != nil {
		logger.Warn(ctx, "failed to publish usage event", "error", err.Error())
	}
}

// causeOf 上下文已取消时返回取消原因；非 CancellationError 的取消视为客户端断开
func causeOf(ctx context.Context) *model.CancellationError {
	if ctx.Err() == nil {
		return nil
	}
	if ce, ok := model.AsCancellation(context.Cause(ctx)); ok {
		return ce
	}
	return &model.CancellationError{Cause: model.CauseClientDisconnected}
}

// clientMessage 面向客户端的错误描述
func clientMessage(pe *model.ProviderError) string {
	if pe.Message != "" {
		return pe.Message
	}
	return string(pe.Kind)
}

// stallWatch 两次增量之间超过 d 时触发 fire
type stallWatch struct {
	mu    sync.Mutex
	d     time.Duration
	timer *time.Timer
}

func newStallWatch(d time.Duration, fire func()) *stallWatch {
	w := &stallWatch{d: d}
	if d > 0 {
		w.timer = time.AfterFunc(d, fire)
	}
	return w
}

func (w *stallWatch) reset() {
	if w.timer == nil {
		return
	}
	w.mu.Lock()
	w.timer.Reset(w.d)
	w.mu.Unlock()
}

func (w *stallWatch) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
