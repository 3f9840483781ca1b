package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/repository"
	"llm-gateway/internal/domain/service"
	apperrors "llm-gateway/pkg/errors"
	"llm-gateway/pkg/logger"
	"llm-gateway/pkg/tracer"
)

// Service 对话入口：发送消息、重新生成、取消
type Service struct {
	threads     repository.ThreadRepository
	attachments repository.AttachmentRepository
	store       service.TurnStore
	registry    service.AdapterResolver
	assembler   *Assembler
	coordinator *Coordinator
	active      *ActiveGenerations
	cfg         config.GatewayConfig

	wg sync.WaitGroup
}

func NewService(
	cfg config.GatewayConfig,
	threads repository.ThreadRepository,
	attachments repository.AttachmentRepository,
	store service.TurnStore,
	registry service.AdapterResolver,
	assembler *Assembler,
	coordinator *Coordinator,
	active *ActiveGenerations,
) *Service {
	return &Service{
		threads:     threads,
		attachments: attachments,
		store:       store,
		registry:    registry,
		assembler:   assembler,
		coordinator: coordinator,
		active:      active,
		cfg:         cfg,
	}
}

// target 已通过同步校验的线程与模型
type target struct {
	thread  *entity.Thread
	adapter service.ProviderAdapter
	modelID string
}

// prepareFunc 在取得线程独占后执行，返回待组装的历史
type prepareFunc func(ctx context.Context, gen *Generation) ([]model.PendingTurn, error)

// SendTurn 追加一条用户消息并流式返回助手回复。
// 线程不存在、模型不可用、参数非法时同步返回错误；之后的一切以事件报告。
func (s *Service) SendTurn(ctx context.Context, threadID, text string, attachmentIDs []string) (*EventStream, error) {
	ctx, span := tracer.Start(ctx, "chat.Service.SendTurn")
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", threadID))

	text = strings.TrimSpace(text)
	attachmentIDs = dedupe(attachmentIDs)
	if text == "" && len(attachmentIDs) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("content or attachments required")
	}

	t, err := s.admit(ctx, threadID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if err := s.checkAttachments(ctx, threadID, attachmentIDs); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	prepare := func(ctx context.Context, _ *Generation) ([]model.PendingTurn, error) {
		if err := s.retryStore(ctx, "append user turn", func(ctx context.Context) error {
			_, err := s.store.AppendUserTurn(ctx, threadID, text, attachmentIDs)
			return err
		}); err != nil {
			return nil, err
		}
		return s.history(ctx, t.thread)
	}
	return s.launch(ctx, t, prepare, nil), nil
}

// Regenerate 针对最近一条用户消息重新生成。该消息已有回复时先软失效，
// 未成功完成则恢复；没有回复时直接生成。
func (s *Service) Regenerate(ctx context.Context, threadID string) (*EventStream, error) {
	ctx, span := tracer.Start(ctx, "chat.Service.Regenerate")
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", threadID))

	t, err := s.admit(ctx, threadID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	prepare := func(ctx context.Context, gen *Generation) ([]model.PendingTurn, error) {
		reply, err := s.store.LatestReply(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if reply != nil {
			if err := s.store.Invalidate(ctx, reply.ID); err != nil {
				return nil, err
			}
			gen.Replaces = reply.ID
			logger.Info(ctx, "assistant turn invalidated for regeneration", "turn_id", reply.ID)
		}
		return s.history(ctx, t.thread)
	}
	finalize := func(ctx context.Context, gen *Generation, state State) {
		invalidated := gen.Replaces
		if invalidated == "" || state == StateCompleted {
			return
		}
		err := s.retryStore(context.WithoutCancel(ctx), "restore turn", func(ctx context.Context) error {
			return s.store.Restore(ctx, invalidated)
		})
		if err != nil {
			logger.Error(ctx, "failed to restore invalidated turn", err, "turn_id", invalidated)
			return
		}
		logger.Info(ctx, "invalidated turn restored", "turn_id", invalidated, "status", state.Status())
	}
	return s.launch(ctx, t, prepare, finalize), nil
}

// Cancel 显式取消线程的活动生成
func (s *Service) Cancel(ctx context.Context, threadID string) bool {
	ok := s.active.Cancel(threadID, model.CauseExplicit)
	logger.Info(ctx, "cancel requested", "thread_id", threadID, "had_active", ok)
	return ok
}

// Shutdown 取消全部生成并等待后台任务退出
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.active.Drain(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admit 同步校验：线程存在且模型可用
func (s *Service) admit(ctx context.Context, threadID string) (*target, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("thread id required")
	}
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load thread")
	}
	if thread == nil {
		return nil, apperrors.ErrThreadNotFound
	}
	adapter, modelID, err := s.registry.Resolve(thread.ModelID)
	if err != nil {
		return nil, apperrors.ErrModelUnavailable.WithDetail(thread.ModelID).WithError(err)
	}
	return &target{thread: thread, adapter: adapter, modelID: modelID}, nil
}

// checkAttachments 附件必须存在且属于该线程
func (s *Service) checkAttachments(ctx context.Context, threadID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.attachments.GetByIDs(ctx, ids)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load attachments")
	}
	byID := make(map[string]*entity.Attachment, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	for _, id := range ids {
		a, ok := byID[id]
		if !ok || (a.ThreadID != "" && a.ThreadID != threadID) {
			return apperrors.ErrAttachmentNotFound.WithDetail(id)
		}
	}
	return nil
}

// launch 创建生成并在后台执行；请求上下文结束即视为客户端断开
// 线程上的排队在返回前完成，同一线程的请求按调用顺序接替。
func (s *Service) launch(ctx context.Context, t *target, prepare prepareFunc, finalize func(context.Context, *Generation, State)) *EventStream {
	gen := newGeneration(ctx, t.thread.ID, t.thread.ModelID)
	stream := newEventStream(gen.ID, func() { gen.Cancel(model.CauseClientDisconnected) })
	s.active.Reserve(gen)
	stop := context.AfterFunc(ctx, func() { gen.Cancel(model.CauseClientDisconnected) })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		defer stream.finish()
		defer gen.finish()
		defer s.active.Release(gen)

		ctx := logger.WithThread(gen.Context(), gen.ThreadID, gen.ID)
		state := s.execute(ctx, gen, t, prepare, stream.send)
		if finalize != nil {
			finalize(ctx, gen, state)
		}
	}()
	return stream
}

func (s *Service) execute(ctx context.Context, gen *Generation, t *target, prepare prepareFunc, emit func(Event) bool) State {
	if err := s.active.Await(ctx, gen, s.cfg.SupersedeWait); err != nil {
		return s.reject(ctx, gen, err, emit)
	}
	logger.Info(ctx, "generation admitted", "model", t.thread.ModelID)

	history, err := prepare(ctx, gen)
	if err != nil {
		return s.reject(ctx, gen, err, emit)
	}
	conv, err := s.assembler.Assemble(ctx, history, model.PendingTurn{}, BudgetFor(t.adapter, t.modelID))
	if err != nil {
		return s.reject(ctx, gen, err, emit)
	}
	if ce := causeOf(ctx); ce != nil {
		return s.reject(ctx, gen, ce, emit)
	}
	gen.Conversation = conv
	return s.coordinator.Run(gen, t.adapter, t.modelID, emit)
}

// reject 调度前失败：转换为单个 error 事件
func (s *Service) reject(ctx context.Context, gen *Generation, err error, emit func(Event) bool) State {
	if ce := causeOf(ctx); ce != nil && !errors.Is(err, ErrThreadBusy) {
		gen.transition(StateCancelled)
		logger.Info(ctx, "generation cancelled before dispatch", "cause", ce.Cause, "error", err.Error())
		emit(errorEvent(model.KindCancelled, "generation cancelled: "+string(ce.Cause), false))
		return StateCancelled
	}

	var ev Event
	var ctxErr *model.ContextError
	var pErr *model.PersistenceError
	switch {
	case errors.Is(err, ErrThreadBusy):
		ev = errorEvent(model.KindThreadBusy, "another generation is still running on this thread", true)
	case errors.As(err, &ctxErr):
		ev = errorEvent(ctxErr.Kind(), ctxErr.Message, false)
	case errors.As(err, &pErr):
		ev = errorEvent(model.KindStorageUnavailable, "conversation storage is unavailable", true)
	case errors.Is(err, ErrNoUserTurn):
		ev = errorEvent(model.KindInvalidRequest, err.Error(), false)
	default:
		ev = errorEvent(model.KindUnknown, "generation could not start", false)
	}

	gen.transition(StateFailed)
	logger.Warn(ctx, "generation rejected before dispatch", "kind", ev.Error.Kind, "error", err.Error())
	emit(ev)
	return StateFailed
}

// history 加载未失效的历史并转换为待组装轮次；线程的系统指令置于首位
func (s *Service) history(ctx context.Context, thread *entity.Thread) ([]model.PendingTurn, error) {
	turns, err := s.store.ListActive(ctx, thread.ID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}

	refs, err := s.attachmentRefs(ctx, turns)
	if err != nil {
		return nil, err
	}

	out := make([]model.PendingTurn, 0, len(turns)+1)
	if prompt := strings.TrimSpace(thread.SystemPrompt); prompt != "" {
		out = append(out, model.PendingTurn{Role: model.RoleSystem, Text: prompt})
	}
	for _, t := range turns {
		pt := model.PendingTurn{Role: model.Role(t.Role), Text: t.Content}
		for _, id := range t.AttachmentIDs {
			ref, ok := refs[id]
			if !ok {
				return nil, &model.ContextError{
					Reason:  model.ReasonAttachmentUnresolved,
					Message: fmt.Sprintf("attachment %s no longer exists", id),
					Err:     model.ErrAttachmentUnavailable,
				}
			}
			pt.Attachments = append(pt.Attachments, ref)
		}
		out = append(out, pt)
	}
	return out, nil
}

// attachmentRefs 一次查询历史中引用的全部附件
func (s *Service) attachmentRefs(ctx context.Context, turns []*entity.Turn) (map[string]model.AttachmentRef, error) {
	var ids []string
	for _, t := range turns {
		ids = append(ids, t.AttachmentIDs...)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.attachments.GetByIDs(ctx, ids)
	if err != nil {
		return nil, &model.PersistenceError{Op: "load_attachments", Err: err}
	}
	refs := make(map[string]model.AttachmentRef, len(found))
	for _, a := range found {
		refs[a.ID] = a.Ref()
	}
	return refs, nil
}

// retryStore 按持久化重试策略执行写操作
func (s *Service) retryStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := newRetryPolicy(s.cfg.Persistence.MaxAttempts, s.cfg.Persistence.Backoff)
	return policy.Execute(ctx, fn, func(attempt int, err error) {
		logger.Warn(ctx, op+" failed, retrying", "attempt", attempt, "error", err.Error())
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
