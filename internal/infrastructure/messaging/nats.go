package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/service"
	"llm-gateway/pkg/logger"
	"llm-gateway/pkg/metrics"
)

// NewNATSConn 建立 NATS 连接
func NewNATSConn(cfg config.NATSConfig, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect nats: %w", err)
	}
	return conn, nil
}

// natsSubject 流名映射到 NATS 主题，例如 gateway.usage
func natsSubject(prefix string, stream Stream) string {
	if prefix == "" {
		prefix = "gateway"
	}
	name := string(stream)
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return prefix + "." + name
}

// NATSPublisher 基于 NATS 的生成事件发布器。NATS Core 不落盘，适合可容忍丢失的部署
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

var _ service.GenerationEventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher 创建发布器
func NewNATSPublisher(conn *nats.Conn, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: subjectPrefix}
}

// Publish 发布消息到流对应的主题
func (p *NATSPublisher) Publish(ctx context.Context, stream Stream, msg *Message) error {
	subject := natsSubject(p.prefix, stream)
	_, span := msgTracer.Start(ctx, "nats.Publish",
		trace.WithAttributes(
			attribute.String("subject", subject),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishUsage 发布用量流水
func (p *NATSPublisher) PublishUsage(ctx context.Context, in service.LLMUsageInput) error {
	msg, err := newUsageMessage(ctx, in)
	if err != nil {
		return err
	}
	return p.Publish(ctx, streamForType(msg.Type), msg)
}

// PublishRecovery 发布待恢复的生成结果
func (p *NATSPublisher) PublishRecovery(ctx context.Context, in service.RecoveryInput) error {
	msg, err := newRecoveryMessage(ctx, in)
	if err != nil {
		return err
	}
	return p.Publish(ctx, streamForType(msg.Type), msg)
}

// NATSConsumer 以队列组订阅主题，多个 worker 实例间负载均衡
type NATSConsumer struct {
	conn   *nats.Conn
	stream Stream
	group  ConsumerGroup
	prefix string

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	sub      *nats.Subscription
}

// NewNATSConsumer 创建消费者
func NewNATSConsumer(conn *nats.Conn, subjectPrefix string, stream Stream, group ConsumerGroup) *NATSConsumer {
	return &NATSConsumer{
		conn:     conn,
		stream:   stream,
		group:    group,
		prefix:   subjectPrefix,
		handlers: make(map[string]MessageHandler),
	}
}

// RegisterHandler 注册消息处理器
func (c *NATSConsumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 开始订阅
func (c *NATSConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return fmt.Errorf("consumer already running")
	}

	subject := natsSubject(c.prefix, c.stream)
	sub, err := c.conn.QueueSubscribe(subject, string(c.group), func(m *nats.Msg) {
		c.handle(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", subject, err)
	}
	c.sub = sub
	logger.Info(ctx, "nats consumer started", "subject", subject, "queue", c.group)
	return nil
}

// Stop 取消订阅并等待在途消息处理完毕
func (c *NATSConsumer) Stop() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		_ = sub.Drain()
	}
}

func (c *NATSConsumer) handle(ctx context.Context, data []byte) {
	label := string(c.stream)
	msg, err := decodeMessage(data)
	if err != nil {
		logger.Error(ctx, "failed to unmarshal message", err)
		metrics.MessagesProcessed.WithLabelValues(label, "invalid").Inc()
		return
	}

	ctx = messageContext(ctx, msg)
	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		metrics.MessagesProcessed.WithLabelValues(label, "skipped").Inc()
		return
	}

	if err := handler(ctx, msg); err != nil {
		logger.Error(ctx, "handler failed", err, "message_id", msg.ID)
		metrics.MessagesProcessed.WithLabelValues(label, "failed").Inc()
		return
	}
	metrics.MessagesProcessed.WithLabelValues(label, "success").Inc()
}
