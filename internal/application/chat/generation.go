package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"llm-gateway/internal/domain/model"
)

// State 生成状态机：Idle → Dispatched → Streaming → {Completed, Failed, Cancelled}，终止状态吸收
type State int

const (
	StateIdle State = iota
	StateDispatched
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

// Terminal 是否终止状态
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Status 对外展示的状态
func (s State) Status() string {
	switch s {
	case StateIdle, StateDispatched:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) String() string { return s.Status() }

// Generation 一次生成的内存状态，只由一个协调器持有；结束后只留下持久化结果
type Generation struct {
	ID             string
	ThreadID       string
	RequestedModel string
	Conversation   *model.Conversation
	// Replaces 重新生成时被软失效的助手消息；失败后会恢复它，因此不保存截断的部分回复
	Replaces string

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	text  strings.Builder
}

// newGeneration 生成上下文脱离请求取消，但保留日志与链路值
func newGeneration(parent context.Context, threadID, requestedModel string) *Generation {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	return &Generation{
		ID:             uuid.NewString(),
		ThreadID:       threadID,
		RequestedModel: requestedModel,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Context 取消令牌
func (g *Generation) Context() context.Context { return g.ctx }

// Cancel 以指定原因取消；重复调用只保留第一次的原因
func (g *Generation) Cancel(cause model.CancelCause) {
	g.cancel(&model.CancellationError{Cause: cause})
}

// Done 生成彻底结束（包括持久化与回滚）后关闭
func (g *Generation) Done() <-chan struct{} { return g.done }

func (g *Generation) finish() {
	g.cancel(nil)
	close(g.done)
}

// State 当前状态
func (g *Generation) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// transition 终止状态不可离开；返回是否成功
func (g *Generation) transition(to State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Terminal() {
		return false
	}
	if to < g.state && !to.Terminal() {
		return false
	}
	g.state = to
	return true
}

func (g *Generation) appendText(s string) {
	g.mu.Lock()
	g.text.WriteString(s)
	g.mu.Unlock()
}

// AccumulatedText 已转发的全部文本
func (g *Generation) AccumulatedText() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.text.String()
}
