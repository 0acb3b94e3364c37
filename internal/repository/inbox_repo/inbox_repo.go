package inbox_repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ledger/internal/domain"
)

type inboxRepository struct {
	querier domain.Querier
}

func NewInboxRepository(querier domain.Querier) InboxRepository {
	return &inboxRepository{querier: querier}
}

func (r *inboxRepository) CreateMessage(ctx context.Context, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, kafka_topic, kafka_partition, kafka_offset, payload, status, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	var processedAt sql.NullTime
	if msg.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *msg.ProcessedAt, Valid: true}
	}

	res, err := r.querier.ExecContext(ctx, query,
		msg.ID,
		msg.KafkaTopic,
		msg.KafkaPartition,
		msg.KafkaOffset,
		string(msg.Payload),
		msg.Status,
		msg.ReceivedAt,
		processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inbox message: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox insert: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message with id %s already exists: %w", msg.ID, domain.ErrMessageAlreadyProcessed)
	}
	return nil
}

func (r *inboxRepository) UpdateStatus(ctx context.Context, id string, status domain.InboxMessageStatus) error {
	query := `
		UPDATE inbox_messages
		SET status = $1, processed_at = $2
		WHERE id = $3
	`
	var processedAt sql.NullTime
	if status == domain.InboxStatusProcessed {
		processedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	res, err := r.querier.ExecContext(ctx, query, status, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message with id %s not found for status update", id)
	}
	return nil
}
