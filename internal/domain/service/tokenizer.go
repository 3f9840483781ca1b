package service

// TokenCounter 估算文本 token 数
type TokenCounter interface {
	Count(text string) int
}
