package llm

import (
	"encoding/base64"
	"fmt"
	"strings"

	"llm-gateway/internal/domain/model"
)

// documentText 文档附件的统一文本形式
func documentText(a model.AttachmentContent) string {
	return fmt.Sprintf("[File: %s]\n%s", a.Ref.MimeType, a.Text)
}

// mediaDescriptor 提供商不支持的媒体类型以文本描述代替
func mediaDescriptor(a model.AttachmentContent) string {
	label := string(a.Ref.Kind)
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	if a.URL != "" {
		return fmt.Sprintf("[%s: %s]", label, a.URL)
	}
	return fmt.Sprintf("[%s attachment: %s, %d bytes]", label, a.Ref.MimeType, a.Ref.SizeBytes)
}

// dataURL base64 data URL；没有内联字节时返回空串
func dataURL(a model.AttachmentContent) string {
	if !a.HasInline() {
		return ""
	}
	return "data:" + a.Ref.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// imageURL 托管 URL 优先，否则内联为 data URL
func imageURL(a model.AttachmentContent) string {
	if a.URL != "" {
		return a.URL
	}
	return dataURL(a)
}

// audioFormat input_audio 支持的格式；不支持时返回空串
func audioFormat(mime string) string {
	switch strings.ToLower(mime) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	default:
		return ""
	}
}

// textParts 把纯文本轮次拆成文本片段：正文在前，附件按顺序追加
// supported 返回 true 的附件由调用方自行处理，不进入结果
func textParts(t model.Turn, supported func(model.AttachmentContent) bool) []string {
	parts := make([]string, 0, 1+len(t.Attachments))
	if t.Text != "" {
		parts = append(parts, t.Text)
	}
	for _, a := range t.Attachments {
		if supported != nil && supported(a) {
			continue
		}
		if a.Ref.Kind == model.AttachmentDocument {
			parts = append(parts, documentText(a))
			continue
		}
		parts = append(parts, mediaDescriptor(a))
	}
	return parts
}

// flattenText 只有文本片段的多段内容以空行拼接
func flattenText(parts []string) string {
	return strings.Join(parts, "\n\n")
}
