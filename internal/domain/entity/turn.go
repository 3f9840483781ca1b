package entity

import (
	"time"

	"github.com/lib/pq"
)

// Turn 线程中的一条消息。助手消息只追加；重新生成时旧消息被软失效（InvalidatedAt 非空）
type Turn struct {
	ID               string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ThreadID         string         `json:"thread_id" gorm:"type:uuid;index:idx_turns_thread_created,priority:1;not null"`
	Role             Role           `json:"role" gorm:"type:varchar(16);not null"`
	Content          string         `json:"content" gorm:"type:text;not null"`
	AttachmentIDs    pq.StringArray `json:"attachment_ids,omitempty" gorm:"type:text[]"`
	Model            string         `json:"model,omitempty" gorm:"type:varchar(100)"`
	PromptTokens     *int           `json:"prompt_tokens,omitempty"`
	CompletionTokens *int           `json:"completion_tokens,omitempty"`
	TotalTokens      *int           `json:"total_tokens,omitempty"`
	CostUSD          *float64       `json:"cost_usd,omitempty" gorm:"type:numeric(12,6)"`
	FinishReason     string         `json:"finish_reason,omitempty" gorm:"type:varchar(32)"`
	Truncated        bool           `json:"truncated" gorm:"not null;default:false"`
	InvalidatedAt    *time.Time     `json:"invalidated_at,omitempty" gorm:"index"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime;index:idx_turns_thread_created,priority:2"`
}

func (Turn) TableName() string {
	return "turns"
}

// NewUserTurn 创建用户消息
func NewUserTurn(threadID, content string, attachmentIDs []string) *Turn {
	return &Turn{
		ThreadID:      threadID,
		Role:          RoleUser,
		Content:       content,
		AttachmentIDs: pq.StringArray(attachmentIDs),
		CreatedAt:     time.Now(),
	}
}

// IsActive 未被软失效
func (t *Turn) IsActive() bool {
	return t.InvalidatedAt == nil
}
