// Package model 定义与提供商无关的对话、增量与错误模型
package model

import (
	"slices"
)

// Role 对话角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentKind 附件类型
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	// AttachmentDocument 上传时已抽取文本的文档
	AttachmentDocument AttachmentKind = "document"
)

// AttachmentRef 附件引用，由附件解析器持有，核心只读
type AttachmentRef struct {
	Kind      AttachmentKind `json:"kind"`
	StorageID string         `json:"storage_id"`
	MimeType  string         `json:"mime_type"`
	SizeBytes int64          `json:"size_bytes"`
}

// AttachmentContent 解析后可直接交给提供商的附件内容
// Data、URL、Text 至少一项非空
type AttachmentContent struct {
	Ref  AttachmentRef
	Data []byte
	URL  string
	Text string
}

// HasInline 是否包含内联字节
func (a AttachmentContent) HasInline() bool { return len(a.Data) > 0 }

// PendingTurn 组装前的轮次（历史或新输入），附件尚未解析
type PendingTurn struct {
	Role        Role
	Text        string
	Attachments []AttachmentRef
}

// IsEmpty 没有文本也没有附件
func (t PendingTurn) IsEmpty() bool {
	return t.Text == "" && len(t.Attachments) == 0
}

// Turn 已解析的对话轮次
type Turn struct {
	Role        Role
	Text        string
	Attachments []AttachmentContent
}

// Conversation 不可变的对话：可选的 system 轮次位于首位，其余轮次用户/助手交替，最后一轮为用户
type Conversation struct {
	turns []Turn
}

// NewConversation 拷贝输入轮次构造对话
func NewConversation(turns []Turn) *Conversation {
	cp := make([]Turn, len(turns))
	for i, t := range turns {
		cp[i] = Turn{
			Role:        t.Role,
			Text:        t.Text,
			Attachments: slices.Clone(t.Attachments),
		}
	}
	return &Conversation{turns: cp}
}

// Turns 返回轮次副本
func (c *Conversation) Turns() []Turn {
	if c == nil {
		return nil
	}
	return NewConversation(c.turns).turns
}

// Len 轮次数
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.turns)
}

// System 返回 system 指令；没有时返回空串
func (c *Conversation) System() string {
	if c.Len() == 0 || c.turns[0].Role != RoleSystem {
		return ""
	}
	return c.turns[0].Text
}

// Messages 返回去掉 system 轮次后的轮次副本
func (c *Conversation) Messages() []Turn {
	turns := c.Turns()
	if len(turns) > 0 && turns[0].Role == RoleSystem {
		return turns[1:]
	}
	return turns
}

// Last 最后一轮
func (c *Conversation) Last() (Turn, bool) {
	if c.Len() == 0 {
		return Turn{}, false
	}
	return c.Turns()[c.Len()-1], true
}
