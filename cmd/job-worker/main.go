// Package main 异步任务执行器入口（job-worker）：消费生成事件，写入用量流水与待恢复记录
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"llm-gateway/internal/application/usage"
	"llm-gateway/internal/config"
	"llm-gateway/internal/infrastructure/messaging"
	"llm-gateway/internal/wire"
	"llm-gateway/pkg/logger"
	"llm-gateway/pkg/tracer"
)

const dlqAlertThreshold = 100

// consumer Redis Streams 与 NATS 消费者的公共部分
type consumer interface {
	RegisterHandler(msgType string, handler messaging.MessageHandler)
	Start(ctx context.Context) error
	Stop()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	data, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to init data layer", err)
	}
	defer cleanup()

	recorder := usage.NewRecorder(data.UsageRepo)
	recoveries := usage.NewRecoveryWriter(data.RecoveryRepo)

	natsConn, closeNATS, err := wire.ProvideNATSConn(cfg, "job-worker")
	if err != nil {
		logger.Fatal(ctx, "failed to connect nats", err)
	}
	defer closeNATS()

	var consumers []consumer
	newConsumer := func(stream messaging.Stream, group messaging.ConsumerGroup) consumer {
		if natsConn != nil {
			return messaging.NewNATSConsumer(natsConn, cfg.Messaging.NATS.SubjectPrefix, stream, group)
		}
		c := messaging.NewConsumer(data.RedisClient.Redis(), messaging.ConsumerConfig{
			Stream:       stream,
			Group:        group,
			ConsumerName: hostnameConsumerName(),
			BlockTimeout: cfg.Messaging.RedisStream.BlockTimeout,
			RetryLimit:   cfg.Messaging.RedisStream.RetryLimit,
			Backoff: messaging.BackoffConfig{
				Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
				Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
				Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
			},
		})
		go c.MonitorDLQ(ctx, dlqAlertThreshold)
		return c
	}

	usageConsumer := newConsumer(messaging.StreamUsage, messaging.ConsumerGroupUsageWriter)
	usageConsumer.RegisterHandler(messaging.TypeGenerationCompleted, usageHandler(recorder))
	consumers = append(consumers, usageConsumer)

	recoveryConsumer := newConsumer(messaging.StreamRecovery, messaging.ConsumerGroupRecoveryWriter)
	recoveryConsumer.RegisterHandler(messaging.TypeGenerationPersistFail, recoveryHandler(recoveries))
	consumers = append(consumers, recoveryConsumer)

	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start consumer", err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "driver", driverName(cfg))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	for _, c := range consumers {
		c.Stop()
	}
	cancel()
}

func driverName(cfg *config.Config) string {
	if d := strings.ToLower(cfg.Messaging.Driver); d != "" {
		return d
	}
	return "redis"
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
