package inbox_repo

import (
	"context"

	"ledger/internal/domain"
)

type InboxRepository interface {
	// CreateMessage fails with domain.ErrMessageAlreadyProcessed for a known event id.
	CreateMessage(ctx context.Context, msg *domain.InboxMessage) error
	UpdateStatus(ctx context.Context, id string, status domain.InboxMessageStatus) error
}
