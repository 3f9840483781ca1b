package entity

import "time"

// Thread 对话线程。线程的增删改查由外部服务负责，网关只读取模型与系统指令
type Thread struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       string    `json:"user_id" gorm:"type:uuid;index"`
	Title        string    `json:"title" gorm:"type:varchar(255)"`
	ModelID      string    `json:"model_id" gorm:"column:model_id;type:varchar(100);not null"`
	SystemPrompt string    `json:"system_prompt,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Thread) TableName() string {
	return "threads"
}
