package transfers_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledger/internal/domain"
	"ledger/internal/infrastructure/database"
)

const transferColumns = `id, from_account_number, to_account_number, amount, status, failure_reason, version, created_at, updated_at`

type transferRepository struct {
	querier domain.Querier
}

func NewTransferRepository(querier domain.Querier) TransferRepository {
	return &transferRepository{querier: querier}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*domain.Transfer, error) {
	transfer := &domain.Transfer{}
	var failureReason sql.NullString
	err := row.Scan(
		&transfer.ID,
		&transfer.FromAccountNumber,
		&transfer.ToAccountNumber,
		&transfer.Amount,
		&transfer.Status,
		&failureReason,
		&transfer.Version,
		&transfer.CreatedAt,
		&transfer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	transfer.FailureReason = failureReason.String
	return transfer, nil
}

func nullableReason(reason string) sql.NullString {
	return sql.NullString{String: reason, Valid: reason != ""}
}

func (r *transferRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.querier.ExecContext(ctx, query,
		transfer.ID,
		transfer.FromAccountNumber,
		transfer.ToAccountNumber,
		transfer.Amount,
		transfer.Status,
		nullableReason(transfer.FailureReason),
		transfer.Version,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer %d: %w", transfer.ID, err)
	}
	return nil
}

func (r *transferRepository) GetByID(ctx context.Context, id int64) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	transfer, err := scanTransfer(r.querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get transfer %d: %w", id, err)
	}
	return transfer, nil
}

func (r *transferRepository) UpdateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	query := `
		UPDATE transfers
		SET status = $1, failure_reason = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`
	res, err := r.querier.ExecContext(ctx, query,
		transfer.Status,
		nullableReason(transfer.FailureReason),
		transfer.UpdatedAt,
		transfer.ID,
		transfer.Version,
	)
	if err != nil {
		if database.IsConcurrencyFailure(err) {
			return domain.ErrVersionConflict.WithCause(err)
		}
		return fmt.Errorf("failed to update transfer %d: %w", transfer.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for transfer update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrVersionConflict.WithCause(
			fmt.Errorf("transfer %d not at version %d", transfer.ID, transfer.Version))
	}
	transfer.Version++
	return nil
}

func (r *transferRepository) ListByAccountNumber(ctx context.Context, accountNumber string, limit int) ([]domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE from_account_number = $1 OR to_account_number = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return r.list(ctx, query, accountNumber, limit)
}

func (r *transferRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	return r.list(ctx, query, domain.TransferStatusPending, createdBefore, limit)
}

func (r *transferRepository) list(ctx context.Context, query string, args ...any) ([]domain.Transfer, error) {
	rows, err := r.querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, *transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	return transfers, nil
}
