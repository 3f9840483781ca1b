package main

import (
	"context"
	"fmt"

	"llm-gateway/internal/domain/service"
	"llm-gateway/internal/infrastructure/messaging"
	"llm-gateway/pkg/logger"
)

type recoveryStore interface {
	Store(ctx context.Context, in service.RecoveryInput) error
}

// usageHandler generation.completed → llm_usage_events
func usageHandler(recorder service.LLMUsageRecorder) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.UsagePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("decode usage payload: %w", err)
		}
		in := payload.Input()
		if in.GenerationID == "" {
			in.GenerationID = msg.ID
		}
		return recorder.Record(ctx, in)
	}
}

// recoveryHandler generation.persist_failed → generation_recoveries
func recoveryHandler(store recoveryStore) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.RecoveryPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("decode recovery payload: %w", err)
		}
		in := payload.Input()
		if in.GenerationID == "" {
			in.GenerationID = msg.ID
		}
		if err := store.Store(ctx, in); err != nil {
			return err
		}
		logger.Warn(ctx, "generation stored for manual recovery", "generation_id", in.GenerationID, "content_len", len(in.Content))
		return nil
	}
}
