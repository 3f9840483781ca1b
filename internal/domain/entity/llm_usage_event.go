package entity

import "time"

type LLMUsageEvent struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ThreadID         string    `json:"thread_id" gorm:"type:uuid;index;not null"`
	TurnID           string    `json:"turn_id" gorm:"type:varchar(64)"`
	GenerationID     string    `json:"generation_id" gorm:"type:uuid;uniqueIndex"`
	Provider         string    `json:"provider" gorm:"type:varchar(32);not null"`
	Model            string    `json:"model" gorm:"type:varchar(100);not null"`
	TokensPrompt     int       `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokens_completion" gorm:"not null;default:0"`
	CostUSD          *float64  `json:"cost_usd,omitempty" gorm:"type:numeric(12,6)"`
	DurationMs       int       `json:"duration_ms" gorm:"not null;default:0"`
	Truncated        bool      `json:"truncated" gorm:"not null;default:false"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}
