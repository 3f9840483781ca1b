// Package tokenizer 提供上下文预算使用的 token 估算
package tokenizer

import (
	"context"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"llm-gateway/pkg/logger"
)

// DefaultEncoding 各家模型通用的近似编码
const DefaultEncoding = "cl100k_base"

// Counter 基于 tiktoken 的计数器；编码表不可用时退化为 runes/4 估算
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New 加载编码表；失败时记录告警并使用估算
func New(ctx context.Context) *Counter {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		logger.Warn(ctx, "tiktoken encoding unavailable, falling back to heuristic", "encoding", DefaultEncoding, "error", err.Error())
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// NewHeuristic 不依赖编码表的计数器
func NewHeuristic() *Counter {
	return &Counter{}
}

// Count 返回文本的 token 数
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate 每 4 个字符约 1 个 token，向上取整
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
