package entity

import (
	"encoding/json"
	"time"
)

// GenerationRecovery 助手消息写入失败后留存的生成结果，供人工恢复
type GenerationRecovery struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	GenerationID string          `json:"generation_id" gorm:"type:uuid;uniqueIndex;not null"`
	ThreadID     string          `json:"thread_id" gorm:"type:uuid;index;not null"`
	Model        string          `json:"model" gorm:"type:varchar(100)"`
	Content      string          `json:"content" gorm:"type:text;not null"`
	Usage        json.RawMessage `json:"usage,omitempty" gorm:"type:jsonb"`
	LastError    string          `json:"last_error" gorm:"type:text"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (GenerationRecovery) TableName() string {
	return "generation_recoveries"
}
