package accounts_repo

import (
	"context"

	"ledger/internal/domain"
)

// AccountRepository is bound to one unit of work.
type AccountRepository interface {
	// CreateAccount fails with domain.ErrDuplicateAccountNumber when the number is taken.
	CreateAccount(ctx context.Context, account *domain.Account) error
	// GetByAccountNumber fails with domain.ErrAccountNotFound when absent.
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// UpdateAccount writes account only if the stored version still equals
	// account.Version, then increments account.Version. A stale version fails with
	// domain.ErrVersionConflict.
	UpdateAccount(ctx context.Context, account *domain.Account) error
}
