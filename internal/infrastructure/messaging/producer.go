package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"llm-gateway/internal/domain/service"
	"llm-gateway/pkg/logger"
	"llm-gateway/pkg/tracer"
)

var msgTracer = otel.Tracer("messaging")

// Producer 基于 Redis Streams 的消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

var _ service.GenerationEventPublisher = (*Producer)(nil)

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := msgTracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishUsage 发布一次完成生成的用量流水
func (p *Producer) PublishUsage(ctx context.Context, in service.LLMUsageInput) error {
	msg, err := newUsageMessage(ctx, in)
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, streamForType(msg.Type), msg)
	return err
}

// PublishRecovery 发布写入失败的生成结果
func (p *Producer) PublishRecovery(ctx context.Context, in service.RecoveryInput) error {
	msg, err := newRecoveryMessage(ctx, in)
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, streamForType(msg.Type), msg)
	return err
}

func newUsageMessage(ctx context.Context, in service.LLMUsageInput) (*Message, error) {
	msg, err := NewMessage(in.GenerationID, TypeGenerationCompleted, in.ThreadID, UsagePayloadFrom(in))
	if err != nil {
		return nil, err
	}
	stampTrace(ctx, msg)
	return msg, nil
}

func newRecoveryMessage(ctx context.Context, in service.RecoveryInput) (*Message, error) {
	msg, err := NewMessage(in.GenerationID, TypeGenerationPersistFail, in.ThreadID, RecoveryPayloadFrom(in))
	if err != nil {
		return nil, err
	}
	stampTrace(ctx, msg)
	return msg, nil
}

// stampTrace 把请求与链路标识带到消费端日志
func stampTrace(ctx context.Context, msg *Message) {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		msg.SetMetadata("request_id", reqID)
	}
	msg.SetMetadata("trace_id", tracer.TraceID(ctx))
}

// UsagePayload generation.completed 消息载荷
type UsagePayload struct {
	GenerationID     string    `json:"generation_id"`
	ThreadID         string    `json:"thread_id"`
	TurnID           string    `json:"turn_id,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          *float64  `json:"cost_usd,omitempty"`
	DurationMs       int       `json:"duration_ms"`
	Truncated        bool      `json:"truncated"`
	CompletedAt      time.Time `json:"completed_at"`
}

// UsagePayloadFrom 由领域输入构造载荷
func UsagePayloadFrom(in service.LLMUsageInput) UsagePayload {
	return UsagePayload{
		GenerationID:     in.GenerationID,
		ThreadID:         in.ThreadID,
		TurnID:           in.TurnID,
		Provider:         in.Provider,
		Model:            in.Model,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		CostUSD:          in.CostUSD,
		DurationMs:       in.DurationMs,
		Truncated:        in.Truncated,
		CompletedAt:      in.CompletedAt,
	}
}

// Input 还原为领域输入
func (p UsagePayload) Input() service.LLMUsageInput {
	return service.LLMUsageInput{
		GenerationID:     p.GenerationID,
		ThreadID:         p.ThreadID,
		TurnID:           p.TurnID,
		Provider:         p.Provider,
		Model:            p.Model,
		PromptTokens:     p.PromptTokens,
		CompletionTokens: p.CompletionTokens,
		CostUSD:          p.CostUSD,
		DurationMs:       p.DurationMs,
		Truncated:        p.Truncated,
		CompletedAt:      p.CompletedAt,
	}
}

// RecoveryPayload generation.persist_failed 消息载荷
type RecoveryPayload struct {
	GenerationID     string `json:"generation_id"`
	ThreadID         string `json:"thread_id"`
	Model            string `json:"model"`
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	LastError        string `json:"last_error"`
}

// RecoveryPayloadFrom 由领域输入构造载荷
func RecoveryPayloadFrom(in service.RecoveryInput) RecoveryPayload {
	return RecoveryPayload{
		GenerationID:     in.GenerationID,
		ThreadID:         in.ThreadID,
		Model:            in.Model,
		Content:          in.Content,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		LastError:        in.LastError,
	}
}

// Input 还原为领域输入
func (p RecoveryPayload) Input() service.RecoveryInput {
	return service.RecoveryInput{
		GenerationID:     p.GenerationID,
		ThreadID:         p.ThreadID,
		Model:            p.Model,
		Content:          p.Content,
		PromptTokens:     p.PromptTokens,
		CompletionTokens: p.CompletionTokens,
		LastError:        p.LastError,
	}
}
