package accounts_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/infrastructure/database"
)

type accountRepository struct {
	querier domain.Querier
}

func NewAccountRepository(querier domain.Querier) AccountRepository {
	return &accountRepository{querier: querier}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (account_number, holder_name, balance, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.querier.ExecContext(ctx, query,
		account.AccountNumber,
		account.HolderName,
		account.Balance,
		account.Status,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicateAccountNumber.WithCause(err)
		}
		return fmt.Errorf("failed to create account %s: %w", account.AccountNumber, err)
	}
	return nil
}

func (r *accountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `
		SELECT account_number, holder_name, balance, status, version, created_at, updated_at
		FROM accounts
		WHERE account_number = $1
	`
	account := &domain.Account{}
	err := r.querier.QueryRowContext(ctx, query, accountNumber).Scan(
		&account.AccountNumber,
		&account.HolderName,
		&account.Balance,
		&account.Status,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", accountNumber, err)
	}
	return account, nil
}

// UpdateAccount is a compare-and-swap on version. A concurrent writer holding the
// row blocks this statement until it commits, after which the WHERE clause no
// longer matches.
func (r *accountRepository) UpdateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, status = $2, updated_at = $3, version = version + 1
		WHERE account_number = $4 AND version = $5
	`
	res, err := r.querier.ExecContext(ctx, query,
		account.Balance,
		account.Status,
		account.UpdatedAt,
		account.AccountNumber,
		account.Version,
	)
	if err != nil {
		if database.IsConcurrencyFailure(err) {
			return domain.ErrVersionConflict.WithCause(err)
		}
		return fmt.Errorf("failed to update account %s: %w", account.AccountNumber, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrVersionConflict.WithCause(
			fmt.Errorf("account %s not at version %d", account.AccountNumber, account.Version))
	}
	account.Version++
	return nil
}
