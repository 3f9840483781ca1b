package entity

import (
	"time"

	"llm-gateway/internal/domain/model"
)

// Attachment 已上传的媒体附件。上传、缩略图等由外部媒体服务负责
type Attachment struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ThreadID    string    `json:"thread_id" gorm:"type:uuid;index"`
	MediaType   string    `json:"media_type" gorm:"type:varchar(20);not null"`
	StoragePath string    `json:"storage_path" gorm:"type:varchar(512);not null"`
	MimeType    string    `json:"mime_type" gorm:"type:varchar(100);not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	TextContent string    `json:"-" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Attachment) TableName() string {
	return "media_attachments"
}

// Ref 转为核心层的附件引用，StorageID 即附件 ID
func (a *Attachment) Ref() model.AttachmentRef {
	return model.AttachmentRef{
		Kind:      model.AttachmentKind(a.MediaType),
		StorageID: a.ID,
		MimeType:  a.MimeType,
		SizeBytes: a.FileSize,
	}
}
