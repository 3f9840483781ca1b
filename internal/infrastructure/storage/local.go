// Package storage 提供附件内容解析
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/repository"
	"llm-gateway/pkg/tracer"
)

// LocalResolver 从本地媒体目录读取附件；配置了 PublicBaseURL 时同时给出托管 URL
type LocalResolver struct {
	root          string
	publicBaseURL string
	maxBytes      int64
	attachments   repository.AttachmentRepository
}

// NewLocalResolver 创建本地附件解析器
func NewLocalResolver(cfg config.MediaStorageConfig, attachments repository.AttachmentRepository) *LocalResolver {
	return &LocalResolver{
		root:          cfg.Root,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes:      cfg.MaxBytes,
		attachments:   attachments,
	}
}

// Resolve 文档返回抽取文本；媒体返回内联字节和（可选的）托管 URL
func (r *LocalResolver) Resolve(ctx context.Context, ref model.AttachmentRef) (model.AttachmentContent, error) {
	ctx, span := tracer.Start(ctx, "storage.LocalResolver.Resolve")
	defer span.End()

	found, err := r.attachments.GetByIDs(ctx, []string{ref.StorageID})
	if err != nil {
		tracer.RecordError(span, err)
		return model.AttachmentContent{}, fmt.Errorf("failed to load attachment %s: %w", ref.StorageID, err)
	}
	if len(found) == 0 {
		return model.AttachmentContent{}, fmt.Errorf("%w: %s not found", model.ErrAttachmentUnavailable, ref.StorageID)
	}
	att := found[0]
	content := model.AttachmentContent{Ref: ref}

	if ref.Kind == model.AttachmentDocument {
		if att.TextContent != "" {
			content.Text = att.TextContent
			return content, nil
		}
		data, err := r.read(att.StoragePath)
		if err != nil {
			return model.AttachmentContent{}, err
		}
		content.Text = string(data)
		return content, nil
	}

	if r.publicBaseURL != "" {
		content.URL = r.publicBaseURL + "/" + filepath.ToSlash(filepath.Clean(att.StoragePath))
	}
	data, err := r.read(att.StoragePath)
	if err != nil {
		if content.URL != "" && !errors.Is(err, fs.ErrNotExist) {
			return content, nil
		}
		return model.AttachmentContent{}, err
	}
	content.Data = data
	return content, nil
}

// read 读取根目录下的相对路径，拒绝越界路径与超限文件
func (r *LocalResolver) read(rel string) ([]byte, error) {
	clean := filepath.Clean("/" + rel)
	path := filepath.Join(r.root, clean)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", model.ErrAttachmentUnavailable, rel, err)
		}
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrAttachmentUnavailable, rel, err)
	}
	defer f.Close()

	limit := r.maxBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrAttachmentUnavailable, rel, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", model.ErrAttachmentUnavailable, rel, limit)
	}
	return data, nil
}
