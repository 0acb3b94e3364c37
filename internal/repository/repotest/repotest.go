// Package repotest provides UnitOfWork wrappers for service tests.
package repotest

import (
	"context"
	"sync/atomic"

	"ledger/internal/domain"
	"ledger/internal/repository"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/transfers_repo"
)

// CountingUnitOfWork counts calls to Do.
type CountingUnitOfWork struct {
	repository.UnitOfWork
	calls atomic.Int64
}

func NewCountingUnitOfWork(uow repository.UnitOfWork) *CountingUnitOfWork {
	return &CountingUnitOfWork{UnitOfWork: uow}
}

func (c *CountingUnitOfWork) Do(ctx context.Context, fn repository.TxFunc) error {
	c.calls.Add(1)
	return c.UnitOfWork.Do(ctx, fn)
}

func (c *CountingUnitOfWork) Calls() int {
	return int(c.calls.Load())
}

// FaultyUnitOfWork injects errors into repository writes. A nil hook leaves the
// corresponding method untouched; a hook returning nil lets the call through.
type FaultyUnitOfWork struct {
	repository.UnitOfWork

	UpdateAccount  func(account *domain.Account) error
	UpdateTransfer func(transfer *domain.Transfer) error
	CreateTransfer func(transfer *domain.Transfer) error
}

func (f *FaultyUnitOfWork) Do(ctx context.Context, fn repository.TxFunc) error {
	return f.UnitOfWork.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if f.UpdateAccount != nil {
			repos.Accounts = &faultyAccounts{AccountRepository: repos.Accounts, update: f.UpdateAccount}
		}
		if f.UpdateTransfer != nil || f.CreateTransfer != nil {
			repos.Transfers = &faultyTransfers{
				TransferRepository: repos.Transfers,
				update:             f.UpdateTransfer,
				create:             f.CreateTransfer,
			}
		}
		return fn(ctx, repos)
	})
}

type faultyAccounts struct {
	accounts_repo.AccountRepository
	update func(account *domain.Account) error
}

func (r *faultyAccounts) UpdateAccount(ctx context.Context, account *domain.Account) error {
	if err := r.update(account); err != nil {
		return err
	}
	return r.AccountRepository.UpdateAccount(ctx, account)
}

type faultyTransfers struct {
	transfers_repo.TransferRepository
	update func(transfer *domain.Transfer) error
	create func(transfer *domain.Transfer) error
}

func (r *faultyTransfers) UpdateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	if r.update != nil {
		if err := r.update(transfer); err != nil {
			return err
		}
	}
	return r.TransferRepository.UpdateTransfer(ctx, transfer)
}

func (r *faultyTransfers) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	if r.create != nil {
		if err := r.create(transfer); err != nil {
			return err
		}
	}
	return r.TransferRepository.CreateTransfer(ctx, transfer)
}

// AlwaysConflict is a hook that fails every write with a version conflict.
func AlwaysConflict[T any](T) error {
	return domain.ErrVersionConflict
}
