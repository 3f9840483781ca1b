package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/model"
)

func ptr(v float64) *float64 { return &v }

func TestComputeCost(t *testing.T) {
	p := &entity.ModelPricing{InputPerMillion: 2, OutputPerMillion: 8}
	usage := model.Usage{PromptTokens: 1500, CompletionTokens: 500}

	assert.InDelta(t, 0.007, ComputeCost(p, usage, MediaTokens{Image: 1000}), 1e-9)

	p.ImageInputPerMillion = ptr(1)
	assert.InDelta(t, 0.006, ComputeCost(p, usage, MediaTokens{Image: 1000}), 1e-9)
}

func TestComputeCost_ScalesOversizedMediaEstimate(t *testing.T) {
	p := &entity.ModelPricing{InputPerMillion: 2, OutputPerMillion: 8, ImageInputPerMillion: ptr(1)}
	usage := model.Usage{PromptTokens: 1500}

	// 估算 3000 > 实际 1500，按一半计入图片，文本部分为 0
	assert.InDelta(t, 0.0015, ComputeCost(p, usage, MediaTokens{Image: 3000}), 1e-9)
}

func TestComputeCost_Rounds(t *testing.T) {
	p := &entity.ModelPricing{InputPerMillion: 0.1, OutputPerMillion: 0.2}
	got := ComputeCost(p, model.Usage{PromptTokens: 7, CompletionTokens: 3}, MediaTokens{})
	assert.InDelta(t, 0.000001, got, 1e-12)
}

func TestMediaTokensFor(t *testing.T) {
	conv := model.NewConversation([]model.Turn{
		{Role: model.RoleUser, Text: "see", Attachments: []model.AttachmentContent{
			{Ref: model.AttachmentRef{Kind: model.AttachmentImage}},
			{Ref: model.AttachmentRef{Kind: model.AttachmentAudio, SizeBytes: 32000}},
			{Ref: model.AttachmentRef{Kind: model.AttachmentDocument, SizeBytes: 400}},
		}},
	})
	m := MediaTokensFor(conv)
	assert.Equal(t, MediaTokens{Image: 1000, Audio: 50}, m)
	assert.Equal(t, 1050, m.Total())
}

func TestPricer_Cost(t *testing.T) {
	repo := &memPricing{}
	pricer := NewPricer(repo)

	cost, err := pricer.Cost(context.Background(), testModel, &model.Usage{PromptTokens: 10}, MediaTokens{})
	require.NoError(t, err)
	assert.Nil(t, cost)

	repo.pricing = &entity.ModelPricing{InputPerMillion: 1000, OutputPerMillion: 1000}
	cost, err = pricer.Cost(context.Background(), testModel, nil, MediaTokens{})
	require.NoError(t, err)
	assert.Nil(t, cost)

	cost, err = pricer.Cost(context.Background(), testModel, &model.Usage{PromptTokens: 10, CompletionTokens: 5}, MediaTokens{})
	require.NoError(t, err)
	require.NotNil(t, cost)
	assert.InDelta(t, 0.015, *cost, 1e-9)
}
