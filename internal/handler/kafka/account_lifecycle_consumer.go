package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ledger/internal/app/accounts"
	"ledger/internal/domain"
	"ledger/internal/domain/event"
	kafka_infra "ledger/internal/infrastructure/kafka"
)

// AccountLifecycleMessageHandler applies account lifecycle events. Payloads that
// can never be applied are logged and acknowledged so they do not block the
// partition; those carrying an event id are also stored in the inbox as FAILED.
func AccountLifecycleMessageHandler(accountService accounts.AccountService, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Info("Received account lifecycle message",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		var lifecycleEvent event.AccountLifecycleEvent
		if err := json.Unmarshal(msg.Value, &lifecycleEvent); err != nil {
			logger.Error("Failed to unmarshal Kafka message value to AccountLifecycleEvent",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
		if lifecycleEvent.EventID == "" || lifecycleEvent.AccountNumber == "" {
			logger.Error("Account lifecycle event is missing event_id or account_number, skipping",
				zap.ByteString("value", msg.Value))
			return nil
		}
		inboxMsg := domain.InboxMessage{
			ID:             lifecycleEvent.EventID,
			KafkaTopic:     msg.Topic,
			KafkaPartition: msg.Partition,
			KafkaOffset:    msg.Offset,
			Payload:        msg.Value,
			Status:         domain.InboxStatusNew,
			ReceivedAt:     time.Now().UTC(),
		}

		if lifecycleEvent.Type != event.TypeAccountDeleted {
			logger.Warn("Unsupported account lifecycle event type, skipping",
				zap.String("event_id", lifecycleEvent.EventID),
				zap.String("type", lifecycleEvent.Type))
			return reject(ctx, accountService, inboxMsg, "unsupported event type "+lifecycleEvent.Type)
		}

		err := accountService.ApplyLifecycleEvent(ctx, lifecycleEvent, inboxMsg)
		if errors.Is(err, domain.ErrAccountNotFound) {
			logger.Warn("Lifecycle event for unknown account, skipping",
				zap.String("event_id", lifecycleEvent.EventID),
				zap.String("account_number", lifecycleEvent.AccountNumber))
			return reject(ctx, accountService, inboxMsg, domain.ErrAccountNotFound.Message)
		}
		if err != nil {
			logger.Error("Failed to apply account lifecycle event",
				zap.String("event_id", lifecycleEvent.EventID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to apply lifecycle event %s: %w", lifecycleEvent.EventID, err)
		}

		logger.Info("Successfully processed account lifecycle event",
			zap.String("event_id", lifecycleEvent.EventID),
			zap.String("account_number", lifecycleEvent.AccountNumber),
		)
		return nil
	}
}

// reject returns an error only when the FAILED row could not be stored, so the
// consumer redelivers the message.
func reject(ctx context.Context, accountService accounts.AccountService, msg domain.InboxMessage, reason string) error {
	if err := accountService.RejectLifecycleEvent(ctx, msg, reason); err != nil {
		return fmt.Errorf("failed to reject lifecycle event %s: %w", msg.ID, err)
	}
	return nil
}
