// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/repository"
)

type TurnRepository struct {
	client *Client
}

func NewTurnRepository(client *Client) *TurnRepository {
	return &TurnRepository{client: client}
}

func (r *TurnRepository) Create(ctx context.Context, turn *entity.Turn) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create turn: %w", err)
	}
	return nil
}

// ListActive 取最近 limit 条未失效消息，按时间升序返回
func (r *TurnRepository) ListActive(ctx context.Context, threadID string, limit int) ([]*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.ListActive")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("thread_id = ? AND invalidated_at IS NULL", threadID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var turns []*entity.Turn
	if err := query.Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	slices.Reverse(turns)
	return turns, nil
}

// LatestReply 没有未失效的用户消息时子查询为 NULL，不会匹配任何行
func (r *TurnRepository) LatestReply(ctx context.Context, threadID string) (*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.LatestReply")
	defer span.End()

	db := getDB(ctx, r.client.db)
	lastUser := db.Model(&entity.Turn{}).
		Select("created_at").
		Where("thread_id = ? AND role = ? AND invalidated_at IS NULL", threadID, entity.RoleUser).
		Order("created_at DESC").
		Limit(1)

	var turn entity.Turn
	err := db.Where("thread_id = ? AND role = ? AND invalidated_at IS NULL AND created_at > (?)",
		threadID, entity.RoleAssistant, lastUser).
		Order("created_at DESC").
		First(&turn).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest reply: %w", err)
	}
	return &turn, nil
}

func (r *TurnRepository) Invalidate(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.Invalidate")
	defer span.End()

	now := time.Now()
	return r.setInvalidatedAt(ctx, id, &now)
}

func (r *TurnRepository) Restore(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.Restore")
	defer span.End()

	return r.setInvalidatedAt(ctx, id, nil)
}

func (r *TurnRepository) setInvalidatedAt(ctx context.Context, id string, at *time.Time) error {
	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Turn{}).Where("id = ?", id).Update("invalidated_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to update turn %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
