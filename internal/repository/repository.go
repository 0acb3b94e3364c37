package repository

import (
	"context"

	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/inbox_repo"
	"ledger/internal/repository/outbox_repo"
	"ledger/internal/repository/transfers_repo"
)

// Repositories are bound to a single unit of work and must not be used after
// the function passed to UnitOfWork.Do returns.
type Repositories struct {
	Accounts  accounts_repo.AccountRepository
	Transfers transfers_repo.TransferRepository
	Outbox    outbox_repo.OutboxRepository
	Inbox     inbox_repo.InboxRepository
}

type TxFunc func(ctx context.Context, repos Repositories) error

// UnitOfWork runs fn atomically. If fn returns an error, or the commit fails,
// none of the writes made through repos become visible and the error is returned.
type UnitOfWork interface {
	Do(ctx context.Context, fn TxFunc) error
}
