//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"llm-gateway/internal/application/chat"
	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/repository"
	"llm-gateway/internal/domain/service"
	"llm-gateway/internal/infrastructure/llm"
	"llm-gateway/internal/infrastructure/persistence/postgres"
	"llm-gateway/internal/infrastructure/persistence/redis"
	"llm-gateway/internal/interfaces/http/handler"
	"llm-gateway/internal/interfaces/http/router"
)

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewThreadRepository,
	postgres.NewTurnRepository,
	postgres.NewAttachmentRepository,
	postgres.NewModelPricingRepository,
	postgres.NewLLMUsageEventRepository,
	postgres.NewGenerationRecoveryRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.ThreadRepository), new(*postgres.ThreadRepository)),
	wire.Bind(new(repository.TurnRepository), new(*postgres.TurnRepository)),
	wire.Bind(new(repository.AttachmentRepository), new(*postgres.AttachmentRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	ProvidePricingRepository,
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideEventPublisher,
)

// LLMSet 适配器注册表与健康状态
var LLMSet = wire.NewSet(
	llm.NewRegistry,
	ProvideStatusTracker,
	wire.Bind(new(service.AdapterResolver), new(*llm.Registry)),
	wire.Bind(new(service.ProviderStatusRecorder), new(*llm.StatusTracker)),
)

// ChatSet 对话生成
var ChatSet = wire.NewSet(
	ProvideGatewayConfig,
	ProvideTokenCounter,
	ProvideAttachmentResolver,
	chat.NewRepositoryTurnStore,
	wire.Bind(new(service.TurnStore), new(*chat.RepositoryTurnStore)),
	chat.NewPricer,
	chat.NewAssembler,
	chat.NewCoordinator,
	chat.NewActiveGenerations,
	chat.NewService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewChatHandler,
	handler.NewLLMHandler,
	wire.Bind(new(handler.ChatService), new(*chat.Service)),
	wire.Bind(new(handler.ModelCatalog), new(*llm.Registry)),
	wire.Bind(new(handler.ProviderStatusSource), new(*llm.StatusTracker)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		LLMSet,
		ChatSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeDataLayer 初始化数据层（job-worker、bootstrap）
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	wire.Build(
		PostgresSet,
		ProvideRedisClient,
		wire.Struct(new(DataLayer), "*"),
	)
	return nil, nil, nil
}
