package llm

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/tidwall/gjson"

	"llm-gateway/internal/domain/model"
)

// errorMapper 将适配器内部错误归一化；emitted 表示此前是否已输出过文本
type errorMapper func(err error, emitted bool) *model.ProviderError

// kindFromStatus HTTP 状态码到错误类别
func kindFromStatus(status int) model.ErrorKind {
	switch status {
	case 401, 403:
		return model.KindAuth
	case 429:
		return model.KindRateLimit
	case 408, 504:
		return model.KindTimeout
	case 400, 404, 413, 422:
		return model.KindInvalidRequest
	case 500, 502, 503, 529:
		return model.KindUpstreamUnavailable
	default:
		return model.KindUnknown
	}
}

// classifyTransport 网络层错误：超时、连接失败或读中断
func classifyTransport(provider string, err error, emitted bool) *model.ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewProviderError(provider, "", model.KindTimeout, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return model.NewProviderError(provider, "", model.KindCancelled, "request cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewProviderError(provider, "", model.KindTimeout, "network timeout", err)
	}
	if emitted {
		return model.NewProviderError(provider, "", model.KindUpstreamDisconnected, "stream interrupted after partial output", err)
	}
	return model.NewProviderError(provider, "", model.KindUpstreamUnavailable, "upstream connection failed", err)
}

// mapHTTPError 非 2xx 响应；refine 可按响应体中的提供商错误类型修正类别
func mapHTTPError(provider string, se *httpStatusError, refine func(body []byte) (model.ErrorKind, string, string)) *model.ProviderError {
	kind := kindFromStatus(se.StatusCode)
	code := strconv.Itoa(se.StatusCode)
	msg := gjson.GetBytes(se.Body, "error.message").String()
	if refine != nil {
		k, c, m := refine(se.Body)
		if k != "" && k != model.KindUnknown {
			kind = k
		}
		if c != "" {
			code = c
		}
		if m != "" {
			msg = m
		}
	}
	if msg == "" {
		msg = truncate(string(se.Body), 512)
	}
	return model.NewProviderError(provider, code, kind, msg, se)
}

// cancelledError 上下文结束时的终止错误：超时类取消报告 timeout，其余报告 cancelled
func cancelledError(ctx context.Context, provider string) *model.ProviderError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.NewProviderError(provider, "", model.KindTimeout, "generation deadline exceeded", ctx.Err())
	}
	if ce, ok := model.AsCancellation(context.Cause(ctx)); ok && ce.IsTimeout() {
		return model.NewProviderError(provider, "", model.KindTimeout, ce.Error(), ce)
	}
	return model.NewProviderError(provider, "", model.KindCancelled, "generation cancelled", context.Cause(ctx))
}

// streamPayloadError 流内的错误事件（HTTP 200 之后下发）
type streamPayloadError struct {
	Kind    model.ErrorKind
	Code    string
	Message string
}

func (e *streamPayloadError) Error() string {
	return e.Code + ": " + e.Message
}

// defaultMapper 供各适配器组合使用
func defaultMapper(provider string, refine func(body []byte) (model.ErrorKind, string, string)) errorMapper {
	return func(err error, emitted bool) *model.ProviderError {
		if pe, ok := model.AsProviderError(err); ok {
			return pe
		}
		var se *httpStatusError
		if errors.As(err, &se) {
			return mapHTTPError(provider, se, refine)
		}
		var spe *streamPayloadError
		if errors.As(err, &spe) {
			kind := spe.Kind
			// 流中途的可重试错误在已输出文本后按断流处理
			if emitted && kind.Retryable() {
				kind = model.KindUpstreamDisconnected
			}
			return model.NewProviderError(provider, spe.Code, kind, spe.Message, err)
		}
		return classifyTransport(provider, err, emitted)
	}
}
