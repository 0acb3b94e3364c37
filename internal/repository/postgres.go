package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/infrastructure/database"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/inbox_repo"
	"ledger/internal/repository/outbox_repo"
	"ledger/internal/repository/transfers_repo"
)

type pgUnitOfWork struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresUnitOfWork(db *sql.DB, logger *zap.Logger) UnitOfWork {
	return &pgUnitOfWork{db: db, logger: logger}
}

func (u *pgUnitOfWork) Do(ctx context.Context, fn TxFunc) (err error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			u.logger.Error("Panic during transaction, rolling back", zap.Any("panic", p))
			_ = tx.Rollback()
			panic(p)
		}
	}()

	repos := Repositories{
		Accounts:  accounts_repo.NewAccountRepository(tx),
		Transfers: transfers_repo.NewTransferRepository(tx),
		Outbox:    outbox_repo.NewOutboxRepository(tx),
		Inbox:     inbox_repo.NewInboxRepository(tx),
	}

	if err = fn(ctx, repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			u.logger.Error("Failed to roll back transaction", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		if database.IsConcurrencyFailure(err) {
			return domain.ErrVersionConflict.WithCause(err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
