package transfers_repo

import (
	"context"
	"time"

	"ledger/internal/domain"
)

// TransferRepository is bound to one unit of work.
type TransferRepository interface {
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error
	// GetByID fails with domain.ErrTransferNotFound when absent.
	GetByID(ctx context.Context, id int64) (*domain.Transfer, error)
	// UpdateTransfer has the same version contract as accounts_repo.UpdateAccount.
	UpdateTransfer(ctx context.Context, transfer *domain.Transfer) error
	ListByAccountNumber(ctx context.Context, accountNumber string, limit int) ([]domain.Transfer, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transfer, error)
}
