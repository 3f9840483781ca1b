// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"llm-gateway/internal/application/chat"
	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/repository"
	"llm-gateway/internal/domain/service"
	"llm-gateway/internal/infrastructure/llm"
	"llm-gateway/internal/infrastructure/messaging"
	"llm-gateway/internal/infrastructure/persistence/postgres"
	"llm-gateway/internal/infrastructure/persistence/redis"
	"llm-gateway/internal/infrastructure/storage"
	"llm-gateway/internal/infrastructure/tokenizer"
	"llm-gateway/internal/interfaces/http/handler"
	"llm-gateway/internal/interfaces/http/router"
	"llm-gateway/pkg/logger"
)

// App API 网关运行所需的顶层对象
type App struct {
	Router *router.Router
	Chat   *chat.Service
	Status *llm.StatusTracker
}

// DataLayer 数据层依赖容器（job-worker、bootstrap 使用）
type DataLayer struct {
	PgClient     *postgres.Client
	RedisClient  *redis.Client
	PricingRepo  *postgres.ModelPricingRepository
	UsageRepo    *postgres.LLMUsageEventRepository
	RecoveryRepo *postgres.GenerationRecoveryRepository
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvidePricingRepository 经 Redis 缓存的价格仓储
func ProvidePricingRepository(cfg *config.Config, repo *postgres.ModelPricingRepository, cache *redis.Cache) repository.ModelPricingRepository {
	return redis.NewCachedPricingRepository(repo, cache, cfg.Cache.PricingTTL)
}

// ProvideEventPublisher 按 messaging.driver 选择 Redis Streams 或 NATS
func ProvideEventPublisher(cfg *config.Config, redisClient *redis.Client) (service.GenerationEventPublisher, func(), error) {
	switch strings.ToLower(cfg.Messaging.Driver) {
	case "", "redis":
		maxLen := cfg.Messaging.RedisStream.MaxLen
		if maxLen <= 0 {
			maxLen = 100000
		}
		return messaging.NewProducer(redisClient.Redis(), int64(maxLen)), func() {}, nil
	case "nats":
		conn, err := messaging.NewNATSConn(cfg.Messaging.NATS, cfg.App.Name)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = conn.Drain()
		}
		return messaging.NewNATSPublisher(conn, cfg.Messaging.NATS.SubjectPrefix), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging driver %q", cfg.Messaging.Driver)
	}
}

// ProvideTokenCounter 提供 token 计数器
func ProvideTokenCounter(ctx context.Context) service.TokenCounter {
	return tokenizer.New(ctx)
}

// ProvideAttachmentResolver 提供本地附件解析器
func ProvideAttachmentResolver(cfg *config.Config, attachments repository.AttachmentRepository) service.AttachmentResolver {
	return storage.NewLocalResolver(cfg.Storage.Media, attachments)
}

// ProvideStatusTracker 提供商健康状态
func ProvideStatusTracker(cfg *config.Config, registry *llm.Registry) *llm.StatusTracker {
	return llm.NewStatusTracker(registry, cfg.Gateway.Status)
}

// ProvideGatewayConfig 网关行为配置
func ProvideGatewayConfig(cfg *config.Config) config.GatewayConfig {
	return cfg.Gateway
}

// ProvideHealthHandler 就绪检查依赖 Postgres 与 Redis
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, redisClient *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version,
		handler.Dependency{Name: "postgres", Checker: pg},
		handler.Dependency{Name: "redis", Checker: redisClient},
	)
}

// ProvideNATSConn 供 job-worker 使用的 NATS 连接；driver 不是 nats 时返回 nil
func ProvideNATSConn(cfg *config.Config, name string) (*nats.Conn, func(), error) {
	if !strings.EqualFold(cfg.Messaging.Driver, "nats") {
		return nil, func() {}, nil
	}
	conn, err := messaging.NewNATSConn(cfg.Messaging.NATS, name)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(context.Background(), "nats connected", "url", conn.ConnectedUrl())
	return conn, func() { _ = conn.Drain() }, nil
}
