package entity

import "time"

// ModelPricing 模型单价（美元 / 百万 token），按生效时间取最新一条
type ModelPricing struct {
	ID                   string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ModelName            string    `json:"model_name" gorm:"type:varchar(100);index;not null"`
	InputPerMillion      float64   `json:"input_per_million" gorm:"type:numeric(12,6);not null"`
	OutputPerMillion     float64   `json:"output_per_million" gorm:"type:numeric(12,6);not null"`
	ImageInputPerMillion *float64  `json:"image_input_per_million,omitempty" gorm:"type:numeric(12,6)"`
	AudioInputPerMillion *float64  `json:"audio_input_per_million,omitempty" gorm:"type:numeric(12,6)"`
	VideoInputPerMillion *float64  `json:"video_input_per_million,omitempty" gorm:"type:numeric(12,6)"`
	EffectiveFrom        time.Time `json:"effective_from" gorm:"not null"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (ModelPricing) TableName() string {
	return "model_pricing"
}
