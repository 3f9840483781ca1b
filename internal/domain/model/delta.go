package model

import (
	"iter"
	"sync/atomic"
)

// DeltaType 增量类型
type DeltaType string

const (
	DeltaText  DeltaType = "text"
	DeltaDone  DeltaType = "done"
	DeltaError DeltaType = "error"
)

// FinishReason 归一化后的结束原因
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishCancelled     FinishReason = "cancelled"
	FinishError         FinishReason = "error"
	FinishUnknown       FinishReason = "unknown"
)

// NormalizeFinishReason 将各家提供商的结束原因映射为统一取值
func NormalizeFinishReason(raw string) FinishReason {
	switch raw {
	case "stop", "end_turn", "stop_sequence", "STOP", "eos":
		return FinishStop
	case "length", "max_tokens", "MAX_TOKENS", "model_length":
		return FinishLength
	case "content_filter", "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "refusal":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Total 优先使用提供商给出的总数
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// Delta 适配器输出的归一化增量
type Delta struct {
	Type         DeltaType
	Text         string
	FinishReason FinishReason
	Usage        *Usage
	Err          *ProviderError
}

// TextDelta 文本增量
func TextDelta(text string) Delta {
	return Delta{Type: DeltaText, Text: text}
}

// DoneDelta 成功结束
func DoneDelta(reason FinishReason, usage *Usage) Delta {
	if reason == "" {
		reason = FinishStop
	}
	return Delta{Type: DeltaDone, FinishReason: reason, Usage: usage}
}

// ErrorDelta 失败结束
func ErrorDelta(err *ProviderError) Delta {
	return Delta{Type: DeltaError, FinishReason: FinishError, Err: err}
}

// IsTerminal done 或 error
func (d Delta) IsTerminal() bool {
	return d.Type == DeltaDone || d.Type == DeltaError
}

// DeltaStream 惰性、有限、只能消费一次的增量序列
type DeltaStream struct {
	seq  iter.Seq[Delta]
	used atomic.Bool
}

// NewDeltaStream 包装增量序列；序列本身负责以一个终止增量收尾
func NewDeltaStream(seq iter.Seq[Delta]) *DeltaStream {
	return &DeltaStream{seq: seq}
}

// All 返回增量迭代器。流不可重放：再次迭代只得到一个 invalid_request 错误增量
func (s *DeltaStream) All() iter.Seq[Delta] {
	if s.used.Swap(true) {
		return func(yield func(Delta) bool) {
			yield(ErrorDelta(&ProviderError{
				Kind:    KindInvalidRequest,
				Message: "delta stream already consumed",
			}))
		}
	}
	return func(yield func(Delta) bool) {
		terminal := false
		for d := range s.seq {
			if terminal {
				return
			}
			terminal = d.IsTerminal()
			if !yield(d) {
				return
			}
		}
		if !terminal {
			yield(ErrorDelta(&ProviderError{
				Kind:    KindUnknown,
				Message: "stream ended without a terminal delta",
			}))
		}
	}
}
