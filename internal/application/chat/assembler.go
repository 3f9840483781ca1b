package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/service"
	"llm-gateway/pkg/logger"
)

// 附件 token 估算常量
const (
	imageTokens          = 1000
	audioBytesPerSecond  = 16000
	audioTokensPerSecond = 25
	videoBytesPerSecond  = 1_000_000
	videoTokensPerSecond = 50
	documentBytesPerTok  = 4

	// 每条消息的角色与分隔符开销
	turnOverheadTokens = 4
)

// ErrNoUserTurn 组装结果中没有可回复的用户轮次
var ErrNoUserTurn = errors.New("conversation has no user turn to answer")

// ContextBudget 输入 token 上限
type ContextBudget struct {
	MaxInputTokens int
}

// BudgetFor 模型上下文窗口减去预留的输出 token
func BudgetFor(adapter service.ProviderAdapter, modelID string) ContextBudget {
	budget := adapter.ContextWindow(modelID) - adapter.MaxOutputTokens()
	if budget < 1 {
		budget = 1
	}
	return ContextBudget{MaxInputTokens: budget}
}

// Assembler 把线程历史与新输入组装为提供商无关的 Conversation
type Assembler struct {
	counter  service.TokenCounter
	resolver service.AttachmentResolver
}

func NewAssembler(counter service.TokenCounter, resolver service.AttachmentResolver) *Assembler {
	return &Assembler{counter: counter, resolver: resolver}
}

// Assemble history 可以以 system 轮次开头；input 为空时（重新生成）以历史最后的用户轮次为准。
// 超出预算时从最旧的非 system 轮次整轮丢弃，最新的用户轮次永不丢弃；
// 附件只对保留下来的轮次解析，全部解析完成后才返回。
func (a *Assembler) Assemble(ctx context.Context, history []model.PendingTurn, input model.PendingTurn, budget ContextBudget) (*model.Conversation, error) {
	var system *model.PendingTurn
	turns := make([]model.PendingTurn, 0, len(history)+1)
	for i, t := range history {
		if t.Role == model.RoleSystem {
			if i == 0 && t.Text != "" {
				sys := t
				system = &sys
			}
			continue
		}
		if t.IsEmpty() {
			continue
		}
		turns = append(turns, t)
	}
	if !input.IsEmpty() {
		input.Role = model.RoleUser
		turns = append(turns, input)
	}

	turns = mergeConsecutive(turns)

	// 最后一轮必须是用户轮次；其后的助手轮次没有意义
	last := len(turns) - 1
	for last >= 0 && turns[last].Role != model.RoleUser {
		last--
	}
	if last < 0 {
		return nil, ErrNoUserTurn
	}
	turns = turns[:last+1]

	kept, err := a.truncate(ctx, system, turns, budget)
	if err != nil {
		return nil, err
	}

	out := make([]model.Turn, 0, len(kept)+1)
	if system != nil {
		out = append(out, model.Turn{Role: model.RoleSystem, Text: system.Text})
	}
	for _, t := range kept {
		resolved, err := a.resolve(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return model.NewConversation(out), nil
}

// truncate 返回预算内保留的轮次，首个轮次总是用户轮次
func (a *Assembler) truncate(ctx context.Context, system *model.PendingTurn, turns []model.PendingTurn, budget ContextBudget) ([]model.PendingTurn, error) {
	costs := make([]int, len(turns))
	total := 0
	for i, t := range turns {
		costs[i] = a.estimate(t)
		total += costs[i]
	}

	fixed := costs[len(costs)-1]
	if system != nil {
		s := a.estimate(*system)
		fixed += s
		total += s
	}
	if fixed > budget.MaxInputTokens {
		return nil, &model.ContextError{
			Reason:  model.ReasonHistoryTruncatedUnsafely,
			Message: fmt.Sprintf("latest turn needs %d tokens, budget is %d", fixed, budget.MaxInputTokens),
		}
	}

	start := 0
	for total > budget.MaxInputTokens && start < len(turns)-1 {
		total -= costs[start]
		start++
	}
	for start < len(turns)-1 && turns[start].Role != model.RoleUser {
		total -= costs[start]
		start++
	}

	if start > 0 {
		logger.Info(ctx, "history truncated to fit context budget",
			"dropped_turns", start,
			"kept_turns", len(turns)-start,
			"estimated_tokens", total,
			"budget", budget.MaxInputTokens,
		)
	}
	return turns[start:], nil
}

// estimate 单轮 token 估算：文本 + 附件 + 固定开销
func (a *Assembler) estimate(t model.PendingTurn) int {
	n := turnOverheadTokens + a.counter.Count(t.Text)
	for _, ref := range t.Attachments {
		n += AttachmentTokens(ref)
	}
	return n
}

// AttachmentTokens 附件的 token 估算
func AttachmentTokens(ref model.AttachmentRef) int {
	switch ref.Kind {
	case model.AttachmentImage:
		return imageTokens
	case model.AttachmentAudio:
		return int(ref.SizeBytes / audioBytesPerSecond * audioTokensPerSecond)
	case model.AttachmentVideo:
		return int(ref.SizeBytes / videoBytesPerSecond * videoTokensPerSecond)
	default:
		return int(ref.SizeBytes / documentBytesPerTok)
	}
}

func (a *Assembler) resolve(ctx context.Context, t model.PendingTurn) (model.Turn, error) {
	turn := model.Turn{Role: t.Role, Text: t.Text}
	if len(t.Attachments) == 0 {
		return turn, nil
	}
	turn.Attachments = make([]model.AttachmentContent, 0, len(t.Attachments))
	for _, ref := range t.Attachments {
		content, err := a.resolver.Resolve(ctx, ref)
		if err != nil {
			return model.Turn{}, &model.ContextError{
				Reason:  model.ReasonAttachmentUnresolved,
				Message: fmt.Sprintf("attachment %s could not be resolved", ref.StorageID),
				Err:     err,
			}
		}
		turn.Attachments = append(turn.Attachments, content)
	}
	return turn, nil
}

// mergeConsecutive 合并相邻同角色轮次：文本以空行拼接，附件顺序拼接
func mergeConsecutive(turns []model.PendingTurn) []model.PendingTurn {
	out := make([]model.PendingTurn, 0, len(turns))
	for _, t := range turns {
		n := len(out)
		if n > 0 && out[n-1].Role == t.Role {
			prev := &out[n-1]
			prev.Text = joinNonEmpty(prev.Text, t.Text)
			prev.Attachments = append(prev.Attachments, t.Attachments...)
			continue
		}
		t.Attachments = append([]model.AttachmentRef(nil), t.Attachments...)
		out = append(out, t)
	}
	return out
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
