package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ledger/internal/domain"
	kafkaInfra "ledger/internal/infrastructure/kafka"
	"ledger/internal/repository"
)

type Processor struct {
	uow          repository.UnitOfWork
	producer     kafkaInfra.Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	logger       *zap.Logger
}

func NewProcessor(
	uow repository.UnitOfWork,
	producer kafkaInfra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		uow:          uow,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("Failed to process outbox messages", zap.Error(err))
			}
		}
	}
}

// ProcessOnce publishes one batch of pending messages and returns how many were
// marked SENT. A publish failure ends the batch early; unsent messages stay
// PENDING for the next poll.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	p.logger.Debug("Polling for outbox messages...")

	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	sent := 0
	err := p.uow.Do(pollCtx, func(ctx context.Context, repos repository.Repositories) error {
		sent = 0
		messages, err := repos.Outbox.GetPendingMessages(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			p.logger.Debug("No pending outbox messages found.")
			return nil
		}

		for _, msg := range messages {
			if err := p.producer.Produce(ctx, msg.Key, msg.Topic, msg.Payload); err != nil {
				p.logger.Error("Failed to send message to Kafka",
					zap.String("message_id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Error(err))
				break
			}
			if err := repos.Outbox.UpdateMessageStatus(ctx, msg.ID, domain.OutboxStatusSent); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		p.logger.Info("Outbox messages published", zap.Int("count", sent))
	}
	return sent, nil
}
