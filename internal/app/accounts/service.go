package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/domain/event"
	"ledger/internal/outbox"
	"ledger/internal/repository"
)

// DefaultMaxRetries bounds account-number collision and version-conflict retries.
const DefaultMaxRetries = 3

type AccountService interface {
	CreateAccount(ctx context.Context, holderName string, initialBalance decimal.Decimal) (*domain.Account, error)
	GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error)
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error)
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error)
	ApplyLifecycleEvent(ctx context.Context, evt event.AccountLifecycleEvent, msg domain.InboxMessage) error
	RejectLifecycleEvent(ctx context.Context, msg domain.InboxMessage, reason string) error
}

// AccountNumberGenerator returns candidate account numbers. Candidates may
// collide; the service retries with a fresh one.
type AccountNumberGenerator interface {
	Generate() string
}

type GeneratorFunc func() string

func (f GeneratorFunc) Generate() string {
	return f()
}

type accountService struct {
	uow         repository.UnitOfWork
	generator   AccountNumberGenerator
	maxRetries  int
	eventsTopic string
	logger      *zap.Logger
}

func NewAccountService(
	uow repository.UnitOfWork,
	generator AccountNumberGenerator,
	maxRetries int,
	eventsTopic string,
	logger *zap.Logger,
) AccountService {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &accountService{
		uow:         uow,
		generator:   generator,
		maxRetries:  maxRetries,
		eventsTopic: eventsTopic,
		logger:      logger,
	}
}

func (s *accountService) CreateAccount(ctx context.Context, holderName string, initialBalance decimal.Decimal) (*domain.Account, error) {
	now := time.Now().UTC()
	// Validate once up front so that bad input never reaches the retry loop.
	if _, err := domain.NewAccount("", holderName, initialBalance, now); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var created *domain.Account
		err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
			account, err := domain.NewAccount(s.generator.Generate(), holderName, initialBalance, now)
			if err != nil {
				return err
			}
			if err := repos.Accounts.CreateAccount(ctx, account); err != nil {
				return err
			}
			msg, err := outbox.NewAccountMessage(s.eventsTopic, event.TypeAccountCreated, account, initialBalance, now)
			if err != nil {
				return err
			}
			if err := repos.Outbox.CreateMessage(ctx, msg); err != nil {
				return err
			}
			created = account
			return nil
		})
		if err == nil {
			s.logger.Info("Account created",
				zap.String("account_number", created.AccountNumber),
				zap.String("balance", created.Balance.String()))
			return created, nil
		}
		if !errors.Is(err, domain.ErrDuplicateAccountNumber) {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		lastErr = err
		s.logger.Warn("Account number collision, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxRetries))
	}
	return nil, domain.ErrAccountCreationFailed.WithCause(lastErr)
}

func (s *accountService) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var account *domain.Account
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		account, err = repos.Accounts.GetByAccountNumber(ctx, accountNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	if account.IsDeleted() {
		return nil, domain.ErrAccountDeleted
	}
	return account, nil
}

func (s *accountService) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	return s.mutate(ctx, accountNumber, "deposit", domain.ErrDepositFailed, func(account *domain.Account) (string, error) {
		return event.TypeAccountDeposited, account.Deposit(amount)
	}, amount)
}

func (s *accountService) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	return s.mutate(ctx, accountNumber, "withdraw", domain.ErrWithdrawFailed, func(account *domain.Account) (string, error) {
		return event.TypeAccountWithdrawn, account.Withdraw(amount)
	}, amount)
}

// mutate runs load, apply, compare-and-swap as one unit of work and replays the
// whole cycle from a fresh read on version conflicts. Any other error ends the
// loop immediately.
func (s *accountService) mutate(
	ctx context.Context,
	accountNumber string,
	op string,
	exhausted *domain.Error,
	apply func(account *domain.Account) (string, error),
	amount decimal.Decimal,
) (*domain.Account, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var updated *domain.Account
		err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
			account, err := repos.Accounts.GetByAccountNumber(ctx, accountNumber)
			if err != nil {
				return err
			}
			if account.IsDeleted() {
				return domain.ErrAccountDeleted
			}
			messageType, err := apply(account)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			account.UpdatedAt = now
			if err := repos.Accounts.UpdateAccount(ctx, account); err != nil {
				return err
			}
			msg, err := outbox.NewAccountMessage(s.eventsTopic, messageType, account, amount, now)
			if err != nil {
				return err
			}
			if err := repos.Outbox.CreateMessage(ctx, msg); err != nil {
				return err
			}
			updated = account
			return nil
		})
		if err == nil {
			s.logger.Info("Account balance updated",
				zap.String("op", op),
				zap.String("account_number", accountNumber),
				zap.String("amount", amount.String()),
				zap.String("balance", updated.Balance.String()),
				zap.Int64("version", updated.Version))
			return updated, nil
		}
		if !domain.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("Version conflict, retrying",
			zap.String("op", op),
			zap.String("account_number", accountNumber),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxRetries))
	}
	return nil, exhausted.WithCause(lastErr)
}

// ApplyLifecycleEvent records evt in the inbox and applies it in the same unit
// of work. A redelivered event is a no-op.
func (s *accountService) ApplyLifecycleEvent(ctx context.Context, evt event.AccountLifecycleEvent, msg domain.InboxMessage) error {
	if evt.Type != event.TypeAccountDeleted {
		return fmt.Errorf("unsupported lifecycle event type %q", evt.Type)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
			msg.Status = domain.InboxStatusNew
			if err := repos.Inbox.CreateMessage(ctx, &msg); err != nil {
				return err
			}
			account, err := repos.Accounts.GetByAccountNumber(ctx, evt.AccountNumber)
			if err != nil {
				return err
			}
			if !account.IsDeleted() {
				account.MarkDeleted(time.Now().UTC())
				if err := repos.Accounts.UpdateAccount(ctx, account); err != nil {
					return err
				}
			}
			return repos.Inbox.UpdateStatus(ctx, msg.ID, domain.InboxStatusProcessed)
		})
		switch {
		case err == nil:
			s.logger.Info("Account marked deleted",
				zap.String("event_id", evt.EventID),
				zap.String("account_number", evt.AccountNumber))
			return nil
		case errors.Is(err, domain.ErrMessageAlreadyProcessed):
			s.logger.Info("Lifecycle event already processed",
				zap.String("event_id", evt.EventID))
			return nil
		case !domain.IsRetryable(err):
			return err
		}
		lastErr = err
		s.logger.Warn("Version conflict applying lifecycle event, retrying",
			zap.String("event_id", evt.EventID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxRetries))
	}
	return fmt.Errorf("failed to apply lifecycle event %s: %w", evt.EventID, lastErr)
}

// RejectLifecycleEvent stores msg as FAILED so that redeliveries of an event
// that can never be applied are recognised as already handled.
func (s *accountService) RejectLifecycleEvent(ctx context.Context, msg domain.InboxMessage, reason string) error {
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		msg.Status = domain.InboxStatusNew
		if err := repos.Inbox.CreateMessage(ctx, &msg); err != nil {
			return err
		}
		return repos.Inbox.UpdateStatus(ctx, msg.ID, domain.InboxStatusFailed)
	})
	if errors.Is(err, domain.ErrMessageAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record rejected lifecycle event %s: %w", msg.ID, err)
	}
	s.logger.Warn("Lifecycle event rejected",
		zap.String("event_id", msg.ID),
		zap.String("reason", reason))
	return nil
}
