package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/cache"
	"ledger/internal/domain"
	"ledger/internal/domain/event"
	"ledger/internal/outbox"
	"ledger/internal/repository"
)

const (
	DefaultMaxRetries = 10

	DefaultListLimit = 50
	MaxListLimit     = 200

	reasonMaxRetries = "max retries exceeded"
	reasonInternal   = "internal error"
)

// TransferResult is a settled transfer with the balances it left behind.
type TransferResult struct {
	Transfer           *domain.Transfer
	FromAccountBalance decimal.Decimal
	ToAccountBalance   decimal.Decimal
}

type TransferService interface {
	Transfer(ctx context.Context, fromAccountNumber, toAccountNumber string, amount decimal.Decimal) (*TransferResult, error)
	GetTransfer(ctx context.Context, id int64) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, accountNumber string, limit int) ([]domain.Transfer, error)
}

type IDGenerator interface {
	NextID() int64
}

type transferService struct {
	uow         repository.UnitOfWork
	ids         IDGenerator
	cache       cache.TransferCache
	maxRetries  int
	eventsTopic string
	logger      *zap.Logger
}

func NewTransferService(
	uow repository.UnitOfWork,
	ids IDGenerator,
	transferCache cache.TransferCache,
	maxRetries int,
	eventsTopic string,
	logger *zap.Logger,
) TransferService {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	if transferCache == nil {
		transferCache = cache.NopTransferCache{}
	}
	return &transferService{
		uow:         uow,
		ids:         ids,
		cache:       transferCache,
		maxRetries:  maxRetries,
		eventsTopic: eventsTopic,
		logger:      logger,
	}
}

func (s *transferService) Transfer(ctx context.Context, fromAccountNumber, toAccountNumber string, amount decimal.Decimal) (*TransferResult, error) {
	if err := domain.ValidateTransfer(fromAccountNumber, toAccountNumber, amount); err != nil {
		return nil, err
	}

	transfer, err := domain.NewTransfer(s.ids.NextID(), fromAccountNumber, toAccountNumber, amount, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Transfers.CreateTransfer(ctx, transfer)
	})
	if err != nil {
		return nil, domain.ErrTransferFailed.WithCause(fmt.Errorf("failed to record pending transfer: %w", err))
	}

	logger := s.logger.With(
		zap.Int64("transfer_id", transfer.ID),
		zap.String("from_account_number", fromAccountNumber),
		zap.String("to_account_number", toAccountNumber),
		zap.String("amount", amount.String()))
	logger.Info("Transfer pending")

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		result, err := s.execute(ctx, transfer.ID, fromAccountNumber, toAccountNumber, amount)
		if err == nil {
			s.cache.Set(ctx, result.Transfer)
			logger.Info("Transfer succeeded", zap.Int("attempt", attempt))
			return result, nil
		}
		if domain.IsRetryable(err) {
			lastErr = err
			logger.Warn("Version conflict, retrying transfer",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.maxRetries),
				zap.Error(err))
			continue
		}

		var domainErr *domain.Error
		if errors.As(err, &domainErr) {
			s.markFailed(ctx, logger, transfer.ID, domainErr.Message)
			return nil, err
		}
		s.markFailed(ctx, logger, transfer.ID, reasonInternal)
		return nil, fmt.Errorf("failed to execute transfer %d: %w", transfer.ID, err)
	}

	s.markFailed(ctx, logger, transfer.ID, reasonMaxRetries)
	return nil, domain.ErrTransferFailed.WithCause(lastErr)
}

// execute is a single attempt. Both accounts are read and written in
// lexicographic order of their numbers, and SUCCESS is recorded in the same unit
// of work as the balances.
func (s *transferService) execute(ctx context.Context, id int64, fromAccountNumber, toAccountNumber string, amount decimal.Decimal) (*TransferResult, error) {
	ordered := [2]string{fromAccountNumber, toAccountNumber}
	if ordered[1] < ordered[0] {
		ordered[0], ordered[1] = ordered[1], ordered[0]
	}

	var result *TransferResult
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		loaded := make(map[string]*domain.Account, len(ordered))
		for _, number := range ordered {
			account, err := repos.Accounts.GetByAccountNumber(ctx, number)
			if err != nil {
				return err
			}
			loaded[number] = account
		}

		// Existence of both accounts is checked before either one's status.
		source, destination := loaded[fromAccountNumber], loaded[toAccountNumber]
		if source.IsDeleted() || destination.IsDeleted() {
			return domain.ErrAccountDeleted
		}
		if err := source.Withdraw(amount); err != nil {
			return err
		}
		if err := destination.Deposit(amount); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, number := range ordered {
			account := loaded[number]
			account.UpdatedAt = now
			if err := repos.Accounts.UpdateAccount(ctx, account); err != nil {
				return err
			}
		}

		transfer, err := repos.Transfers.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := transfer.MarkSuccess(now); err != nil {
			return err
		}
		if err := repos.Transfers.UpdateTransfer(ctx, transfer); err != nil {
			return err
		}
		msg, err := outbox.NewTransferMessage(s.eventsTopic, event.TypeTransferSucceeded, transfer, now)
		if err != nil {
			return err
		}
		if err := repos.Outbox.CreateMessage(ctx, msg); err != nil {
			return err
		}

		result = &TransferResult{
			Transfer:           transfer,
			FromAccountBalance: source.Balance,
			ToAccountBalance:   destination.Balance,
		}
		return nil
	})
	return result, err
}

// markFailed is best-effort: a failing write is logged and the transfer stays
// PENDING for the reconciler.
func (s *transferService) markFailed(ctx context.Context, logger *zap.Logger, id int64, reason string) {
	ctx = context.WithoutCancel(ctx)
	var failed *domain.Transfer
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		failed, err = finalizeFailed(ctx, repos, id, reason, s.eventsTopic)
		return err
	})
	if err != nil {
		logger.Error("Failed to mark transfer as FAILED",
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	s.cache.Set(ctx, failed)
	logger.Info("Transfer failed", zap.String("reason", reason))
}

// finalizeFailed moves a PENDING transfer to FAILED and queues transfer.failed.
func finalizeFailed(ctx context.Context, repos repository.Repositories, id int64, reason, topic string) (*domain.Transfer, error) {
	transfer, err := repos.Transfers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := transfer.MarkFailed(reason, now); err != nil {
		return nil, err
	}
	if err := repos.Transfers.UpdateTransfer(ctx, transfer); err != nil {
		return nil, err
	}
	msg, err := outbox.NewTransferMessage(topic, event.TypeTransferFailed, transfer, now)
	if err != nil {
		return nil, err
	}
	if err := repos.Outbox.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *transferService) GetTransfer(ctx context.Context, id int64) (*domain.Transfer, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}

	var transfer *domain.Transfer
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		transfer, err = repos.Transfers.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, transfer)
	return transfer, nil
}

// ListTransfers returns transfers the account sent or received, newest first.
// Transfers of deleted accounts stay listable.
func (s *transferService) ListTransfers(ctx context.Context, accountNumber string, limit int) ([]domain.Transfer, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	var transfers []domain.Transfer
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Accounts.GetByAccountNumber(ctx, accountNumber); err != nil {
			return err
		}
		var err error
		transfers, err = repos.Transfers.ListByAccountNumber(ctx, accountNumber, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}
