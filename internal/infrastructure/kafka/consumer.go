package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const handlerRetryDelay = 2 * time.Second

// MessageHandler processes one message. Returning an error leaves the offset
// uncommitted and the message is handed to the handler again.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

type kafkaConsumer struct {
	reader  *kafka.Reader
	logger  *zap.Logger
	topic   string
	groupID string
}

func NewConsumer(brokerURLs []string, groupID, topic string, logger *zap.Logger) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                brokerURLs,
		GroupID:                groupID,
		Topic:                  topic,
		MinBytes:               10e3,
		MaxBytes:               10e6,
		ReadBatchTimeout:       1 * time.Second,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
		HeartbeatInterval:      3 * time.Second,
		CommitInterval:         0,
		PartitionWatchInterval: 5 * time.Second,
		MaxAttempts:            3,
	})

	return &kafkaConsumer{
		reader:  reader,
		logger:  logger,
		topic:   topic,
		groupID: groupID,
	}
}

// Consume blocks until ctx is cancelled.
func (c *kafkaConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Kafka consumer starting", zap.String("topic", c.topic), zap.String("group_id", c.groupID))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, kafka.ErrGroupClosed) {
				c.logger.Info("Kafka consumer context cancelled, stopping.")
				return nil
			}
			c.logger.Error("Failed to fetch message from Kafka", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !c.handle(ctx, msg, handler) {
			c.logger.Info("Kafka consumer context cancelled, stopping.")
			return nil
		}

		if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
			c.logger.Error("Failed to commit offset for Kafka message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(commitErr),
			)
			continue
		}
		c.logger.Debug("Kafka message offset committed",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
	}
}

// handle redelivers msg to handler until it succeeds, so a failed message is
// never skipped by a later commit. It reports false if ctx ended first.
func (c *kafkaConsumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) bool {
	for {
		handlerErr := handler(ctx, msg)
		if handlerErr == nil {
			return true
		}
		c.logger.Error("Error handling Kafka message, will not commit offset",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(handlerErr),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(handlerRetryDelay):
		}
	}
}

func (c *kafkaConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}
	return nil
}
