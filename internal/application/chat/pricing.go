package chat

import (
	"context"
	"math"
	"time"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/repository"
)

// MediaTokens 提示中各类媒体的 token 估算
type MediaTokens struct {
	Image int
	Audio int
	Video int
}

// Total 媒体 token 合计
func (m MediaTokens) Total() int {
	return m.Image + m.Audio + m.Video
}

// MediaTokensFor 统计对话中媒体附件的估算 token；文档按文本计价
func MediaTokensFor(conv *model.Conversation) MediaTokens {
	var m MediaTokens
	for _, t := range conv.Turns() {
		for _, a := range t.Attachments {
			n := AttachmentTokens(a.Ref)
			switch a.Ref.Kind {
			case model.AttachmentImage:
				m.Image += n
			case model.AttachmentAudio:
				m.Audio += n
			case model.AttachmentVideo:
				m.Video += n
			}
		}
	}
	return m
}

// Pricer 按 model_pricing 计算单次生成费用
type Pricer struct {
	repo repository.ModelPricingRepository
	now  func() time.Time
}

func NewPricer(repo repository.ModelPricingRepository) *Pricer {
	return &Pricer{repo: repo, now: time.Now}
}

// Cost 未配置价格或没有用量时返回 nil
func (p *Pricer) Cost(ctx context.Context, modelName string, usage *model.Usage, media MediaTokens) (*float64, error) {
	if p == nil || p.repo == nil || usage == nil {
		return nil, nil
	}
	pricing, err := p.repo.GetCurrent(ctx, modelName, p.now())
	if err != nil {
		return nil, err
	}
	if pricing == nil {
		return nil, nil
	}
	cost := ComputeCost(pricing, *usage, media)
	return &cost, nil
}

// ComputeCost 文本输入 × 输入单价 + 媒体 token × 媒体单价（缺省按输入单价）+ 输出 × 输出单价，
// 单价为每百万 token，结果保留 6 位小数
func ComputeCost(p *entity.ModelPricing, usage model.Usage, media MediaTokens) float64 {
	mediaTotal := media.Total()
	if mediaTotal > usage.PromptTokens {
		// 估算超过实际提示 token 时按比例缩减
		scale := float64(usage.PromptTokens) / float64(mediaTotal)
		media = MediaTokens{
			Image: int(float64(media.Image) * scale),
			Audio: int(float64(media.Audio) * scale),
			Video: int(float64(media.Video) * scale),
		}
		mediaTotal = media.Total()
	}
	textInput := usage.PromptTokens - mediaTotal

	rate := func(r *float64) float64 {
		if r != nil {
			return *r
		}
		return p.InputPerMillion
	}

	total := float64(textInput)*p.InputPerMillion +
		float64(media.Image)*rate(p.ImageInputPerMillion) +
		float64(media.Audio)*rate(p.AudioInputPerMillion) +
		float64(media.Video)*rate(p.VideoInputPerMillion) +
		float64(usage.CompletionTokens)*p.OutputPerMillion

	return roundTo(total/1_000_000, 6)
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow10(places)
	return math.Round(v*pow) / pow
}
