package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/service"
)

const (
	testThread = "thread-1"
	testModel  = "fake-model"
)

// script 单次调度的上游行为
type script struct {
	deltas []model.Delta
	// hang 输出完 deltas 后阻塞到被取消
	hang bool
	// block 非空时输出完 deltas 后无视取消等待其关闭
	block chan struct{}
}

// scriptedAdapter 按调用次序回放 script，最后一个 script 重复使用
type scriptedAdapter struct {
	window  int
	maxOut  int
	scripts []script
	// byInput 按最新用户消息的结尾文本选择 script，优先于 scripts
	byInput map[string]script

	mu    sync.Mutex
	calls int
	convs []*model.Conversation
}

func newScriptedAdapter(scripts ...script) *scriptedAdapter {
	return &scriptedAdapter{window: 100000, maxOut: 1000, scripts: scripts}
}

func (a *scriptedAdapter) Provider() string                  { return "fake" }
func (a *scriptedAdapter) Models() []string                  { return []string{testModel} }
func (a *scriptedAdapter) ContextWindow(string) int          { return a.window }
func (a *scriptedAdapter) MaxOutputTokens() int              { return a.maxOut }
func (a *scriptedAdapter) HealthCheck(context.Context) error { return nil }

func (a *scriptedAdapter) StreamGenerate(ctx context.Context, conv *model.Conversation, _ string) *model.DeltaStream {
	a.mu.Lock()
	idx := min(a.calls, len(a.scripts)-1)
	a.calls++
	a.convs = append(a.convs, conv)
	sc := a.scripts[idx]
	if last, ok := conv.Last(); ok {
		for suffix, byText := range a.byInput {
			if strings.HasSuffix(last.Text, suffix) {
				sc = byText
			}
		}
	}
	a.mu.Unlock()

	cancelled := func() model.Delta {
		return model.ErrorDelta(model.NewProviderError("fake", "", model.KindCancelled, "cancelled", ctx.Err()))
	}
	return model.NewDeltaStream(func(yield func(model.Delta) bool) {
		for _, d := range sc.deltas {
			if ctx.Err() != nil {
				yield(cancelled())
				return
			}
			if !yield(d) {
				return
			}
		}
		switch {
		case sc.block != nil:
			<-sc.block
			yield(cancelled())
		case sc.hang:
			<-ctx.Done()
			yield(cancelled())
		}
	})
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *scriptedAdapter) lastConversation() *model.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.convs) == 0 {
		return nil
	}
	return a.convs[len(a.convs)-1]
}

type staticResolver struct {
	adapter service.ProviderAdapter
}

func (r staticResolver) Resolve(modelID string) (service.ProviderAdapter, string, error) {
	if modelID != testModel {
		return nil, "", fmt.Errorf("%w: %s", model.ErrUnavailableModel, modelID)
	}
	return r.adapter, modelID, nil
}

// memStore 内存版 TurnStore；failAssistant 为前若干次助手写入失败，-1 表示一直失败
type memStore struct {
	mu             sync.Mutex
	turns          []*entity.Turn
	seq            int
	failAssistant  int
	assistantCalls int
}

func (s *memStore) add(turn *entity.Turn) string {
	s.seq++
	turn.ID = fmt.Sprintf("turn-%d", s.seq)
	s.turns = append(s.turns, turn)
	return turn.ID
}

func (s *memStore) seed(role entity.Role, content string, attachmentIDs ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&entity.Turn{ThreadID: testThread, Role: role, Content: content, AttachmentIDs: attachmentIDs})
}

func (s *memStore) AppendAssistantTurn(_ context.Context, in service.AssistantTurn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistantCalls++
	if s.failAssistant < 0 || s.assistantCalls <= s.failAssistant {
		return "", &model.PersistenceError{Op: "append_assistant_turn", Err: errors.New("connection refused")}
	}
	turn := &entity.Turn{
		ThreadID:     in.ThreadID,
		Role:         entity.RoleAssistant,
		Content:      in.Text,
		Model:        in.Model,
		CostUSD:      in.CostUSD,
		FinishReason: string(in.FinishReason),
		Truncated:    in.Truncated,
	}
	if in.Usage != nil {
		total := in.Usage.Total()
		turn.TotalTokens = &total
	}
	return s.add(turn), nil
}

func (s *memStore) AppendUserTurn(_ context.Context, threadID, text string, ids []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(entity.NewUserTurn(threadID, text, ids)), nil
}

func (s *memStore) ListActive(_ context.Context, threadID string, limit int) ([]*entity.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Turn
	for _, t := range s.turns {
		if t.ThreadID == threadID && t.IsActive() {
			cp := *t
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) LatestReply(_ context.Context, threadID string) (*entity.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reply *entity.Turn
	for i := len(s.turns) - 1; i >= 0; i-- {
		t := s.turns[i]
		if t.ThreadID != threadID || !t.IsActive() {
			continue
		}
		switch {
		case t.Role == entity.RoleUser:
			if reply == nil {
				return nil, nil
			}
			cp := *reply
			return &cp, nil
		case t.Role == entity.RoleAssistant && reply == nil:
			reply = t
		}
	}
	return nil, nil
}

func (s *memStore) activeTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, t := range s.turns {
		if t.IsActive() {
			out = append(out, string(t.Role)+":"+t.Content)
		}
	}
	return out
}

func (s *memStore) Invalidate(_ context.Context, id string) error {
	return s.setInvalidated(id, true)
}

func (s *memStore) Restore(_ context.Context, id string) error {
	return s.setInvalidated(id, false)
}

func (s *memStore) setInvalidated(id string, invalid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns {
		if t.ID == id {
			if invalid {
				now := time.Now()
				t.InvalidatedAt = &now
			} else {
				t.InvalidatedAt = nil
			}
			return nil
		}
	}
	return fmt.Errorf("turn %s not found", id)
}

func (s *memStore) turn(id string) *entity.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns {
		if t.ID == id {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (s *memStore) assistantTurns() []*entity.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Turn
	for _, t := range s.turns {
		if t.Role == entity.RoleAssistant {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

type memThreads struct {
	threads map[string]*entity.Thread
}

func (m *memThreads) GetByID(_ context.Context, id string) (*entity.Thread, error) {
	return m.threads[id], nil
}

func (m *memThreads) Touch(context.Context, string) error { return nil }

type memAttachments struct {
	byID map[string]*entity.Attachment
}

func (m *memAttachments) GetByIDs(_ context.Context, ids []string) ([]*entity.Attachment, error) {
	var out []*entity.Attachment
	for _, id := range ids {
		if a, ok := m.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// memResolver missing 中的附件无法解析
type memResolver struct {
	mu      sync.Mutex
	missing map[string]bool
	calls   []string
}

func (r *memResolver) Resolve(_ context.Context, ref model.AttachmentRef) (model.AttachmentContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ref.StorageID)
	if r.missing[ref.StorageID] {
		return model.AttachmentContent{}, fmt.Errorf("%w: %s", model.ErrAttachmentUnavailable, ref.StorageID)
	}
	return model.AttachmentContent{Ref: ref, Data: []byte("blob")}, nil
}

// wordCounter 每个空白分隔的词计 1 token
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type memPublisher struct {
	mu         sync.Mutex
	usage      []service.LLMUsageInput
	recoveries []service.RecoveryInput
}

func (p *memPublisher) PublishUsage(_ context.Context, in service.LLMUsageInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage = append(p.usage, in)
	return nil
}

func (p *memPublisher) PublishRecovery(_ context.Context, in service.RecoveryInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recoveries = append(p.recoveries, in)
	return nil
}

type memStatus struct {
	mu        sync.Mutex
	successes int
	failures  int
}

func (s *memStatus) RecordSuccess(string) {
	s.mu.Lock()
	s.successes++
	s.mu.Unlock()
}

func (s *memStatus) RecordFailure(string, error) {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
}

type memPricing struct {
	pricing *entity.ModelPricing
}

func (m *memPricing) GetCurrent(context.Context, string, time.Time) (*entity.ModelPricing, error) {
	return m.pricing, nil
}

func (m *memPricing) Create(context.Context, *entity.ModelPricing) error { return nil }

func testGatewayConfig() config.GatewayConfig {
	fast := config.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
	return config.GatewayConfig{
		HistoryLimit:             50,
		MaxConcurrentGenerations: 8,
		SupersedeWait:            2 * time.Second,
		Timeouts:                 config.GenerationTimeouts{Total: 5 * time.Second},
		ProviderRetry:            config.RetryConfig{MaxRetries: 1, Backoff: fast},
		Persistence:              config.PersistenceConfig{MaxAttempts: 3, Backoff: fast, Timeout: time.Second},
	}
}

type harness struct {
	svc         *Service
	adapter     *scriptedAdapter
	store       *memStore
	attachments *memAttachments
	resolver    *memResolver
	publisher   *memPublisher
	status      *memStatus
	pricing     *memPricing
}

func newHarness(cfg config.GatewayConfig, scripts ...script) *harness {
	h := &harness{
		adapter:     newScriptedAdapter(scripts...),
		store:       &memStore{},
		attachments: &memAttachments{byID: map[string]*entity.Attachment{}},
		resolver:    &memResolver{missing: map[string]bool{}},
		publisher:   &memPublisher{},
		status:      &memStatus{},
		pricing:     &memPricing{},
	}
	threads := &memThreads{threads: map[string]*entity.Thread{
		testThread:   {ID: testThread, ModelID: testModel, SystemPrompt: "be brief"},
		"thread-bad": {ID: "thread-bad", ModelID: "retired-model"},
	}}
	coordinator := NewCoordinator(cfg, h.store, h.publisher, h.status, NewPricer(h.pricing))
	h.svc = NewService(cfg, threads, h.attachments, h.store, staticResolver{adapter: h.adapter},
		NewAssembler(wordCounter{}, h.resolver), coordinator, NewActiveGenerations())
	return h
}

// drain 读取事件直到流关闭
func drain(t *testing.T, s *EventStream) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not finish")
			return out
		}
	}
}

// next 读取下一个事件
func next(t *testing.T, s *EventStream) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("event stream closed early")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func chunks(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == EventChunk {
			out = append(out, ev.Text)
		}
	}
	return out
}

func terminals(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.IsTerminal() {
			out = append(out, ev)
		}
	}
	return out
}

func providerErr(kind model.ErrorKind) model.Delta {
	return model.ErrorDelta(model.NewProviderError("fake", "", kind, string(kind), nil))
}
