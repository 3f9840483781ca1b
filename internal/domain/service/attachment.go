package service

import (
	"context"

	"llm-gateway/internal/domain/model"
)

// AttachmentResolver 将附件引用解析为提供商可直接使用的内容。
// 无法解析时返回包装了 model.ErrAttachmentUnavailable 的错误。
type AttachmentResolver interface {
	Resolve(ctx context.Context, ref model.AttachmentRef) (model.AttachmentContent, error)
}
