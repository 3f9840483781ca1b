// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/repository"
)

type ThreadRepository struct {
	client *Client
}

func NewThreadRepository(client *Client) *ThreadRepository {
	return &ThreadRepository{client: client}
}

// GetByID 不存在时返回 (nil, nil)
func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*entity.Thread, error) {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var thread entity.Thread
	if err := db.First(&thread, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &thread, nil
}

func (r *ThreadRepository) Touch(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.Touch")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Thread{}).Where("id = ?", id).Update("updated_at", time.Now())
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to touch thread: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
