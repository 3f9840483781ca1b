// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"llm-gateway/internal/domain/entity"
)

type AttachmentRepository struct {
	client *Client
}

func NewAttachmentRepository(client *Client) *AttachmentRepository {
	return &AttachmentRepository{client: client}
}

func (r *AttachmentRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Attachment, error) {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var found []*entity.Attachment
	if err := db.Where("id IN ?", ids).Find(&found).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}

	byID := make(map[string]*entity.Attachment, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out := make([]*entity.Attachment, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
