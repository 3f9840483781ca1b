package model

import (
	"errors"
	"fmt"
)

// ErrorKind 归一化的错误类别，同时用作对外 error 事件的 kind
type ErrorKind string

const (
	KindAuth                 ErrorKind = "auth"
	KindRateLimit            ErrorKind = "rate_limit"
	KindTimeout              ErrorKind = "timeout"
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
	KindUpstreamDisconnected ErrorKind = "upstream_disconnected"
	KindCancelled            ErrorKind = "cancelled"
	KindUnknown              ErrorKind = "unknown"

	// 以下类别只出现在网关对外事件中
	KindStorageUnavailable       ErrorKind = "storage_unavailable"
	KindHistoryTruncatedUnsafely ErrorKind = "history_truncated_unsafely"
	KindAttachmentUnresolved     ErrorKind = "attachment_unresolved"
	KindUnavailableModel         ErrorKind = "unavailable_model"
	KindThreadBusy               ErrorKind = "thread_busy"
)

// Retryable rate_limit、timeout、upstream_unavailable 可自动重试
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindUpstreamUnavailable:
		return true
	default:
		return false
	}
}

// ProviderError 适配器边界上唯一允许出现的错误类型
type ProviderError struct {
	Provider     string
	ProviderCode string
	Kind         ErrorKind
	Retryable    bool
	Message      string
	Err          error
}

// NewProviderError 按类别推导 Retryable
func NewProviderError(provider, code string, kind ErrorKind, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:     provider,
		ProviderCode: code,
		Kind:         kind,
		Retryable:    kind.Retryable(),
		Message:      message,
		Err:          err,
	}
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ProviderCode != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Provider, e.Kind, e.ProviderCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ContextReason 上下文组装失败原因
type ContextReason string

const (
	ReasonHistoryTruncatedUnsafely ContextReason = "history_truncated_unsafely"
	ReasonAttachmentUnresolved     ContextReason = "attachment_unresolved"
)

// ContextError 组装阶段的错误，用户可修正
type ContextError struct {
	Reason  ContextReason
	Message string
	Err     error
}

func (e *ContextError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("context %s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("context %s: %s", e.Reason, e.Message)
}

func (e *ContextError) Unwrap() error { return e.Err }

// Kind 对外事件类别
func (e *ContextError) Kind() ErrorKind {
	if e.Reason == ReasonAttachmentUnresolved {
		return KindAttachmentUnresolved
	}
	return KindHistoryTruncatedUnsafely
}

// PersistenceError 存储层错误
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CancelCause 取消来源
type CancelCause string

const (
	CauseSuperseded         CancelCause = "superseded"
	CauseClientDisconnected CancelCause = "client_disconnected"
	CauseExplicit           CancelCause = "explicit"
	CauseTimeout            CancelCause = "timeout"
	CauseStalled            CancelCause = "stalled"
)

// CancellationError 用户或系统主动终止，不是真正的失败
type CancellationError struct {
	Cause CancelCause
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("generation cancelled: %s", e.Cause)
}

// IsTimeout 由总时长或停滞检测触发
func (e *CancellationError) IsTimeout() bool {
	return e.Cause == CauseTimeout || e.Cause == CauseStalled
}

var (
	// ErrUnavailableModel 模型未配置或提供商缺少凭证
	ErrUnavailableModel = errors.New("model unavailable")
	// ErrAttachmentUnavailable 附件无法解析为可用内容
	ErrAttachmentUnavailable = errors.New("attachment unavailable")
)

// AsProviderError 从错误链中提取 ProviderError
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// AsCancellation 从错误链中提取 CancellationError
func AsCancellation(err error) (*CancellationError, bool) {
	var ce *CancellationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
