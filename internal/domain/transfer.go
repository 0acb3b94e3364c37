package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusPending TransferStatus = "PENDING"
	TransferStatusSuccess TransferStatus = "SUCCESS"
	TransferStatusFailed  TransferStatus = "FAILED"
)

const defaultFailureReason = "unspecified failure"

// Transfer records a money movement. It is created PENDING before any balance is
// touched and moves to SUCCESS or FAILED exactly once.
type Transfer struct {
	ID                int64           `json:"id"`
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Status            TransferStatus  `json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ValidateTransfer checks the static inputs of a transfer. The same-account check
// runs first.
func ValidateTransfer(fromAccountNumber, toAccountNumber string, amount decimal.Decimal) error {
	if fromAccountNumber == toAccountNumber {
		return ErrSameAccountTransfer
	}
	if !amount.IsPositive() {
		return ErrInvalidTransferAmount
	}
	return nil
}

func NewTransfer(id int64, fromAccountNumber, toAccountNumber string, amount decimal.Decimal, now time.Time) (*Transfer, error) {
	if err := ValidateTransfer(fromAccountNumber, toAccountNumber, amount); err != nil {
		return nil, err
	}
	return &Transfer{
		ID:                id,
		FromAccountNumber: fromAccountNumber,
		ToAccountNumber:   toAccountNumber,
		Amount:            amount,
		Status:            TransferStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (t *Transfer) IsTerminal() bool {
	return t.Status == TransferStatusSuccess || t.Status == TransferStatusFailed
}

func (t *Transfer) MarkSuccess(now time.Time) error {
	if t.Status != TransferStatusPending {
		return ErrInvalidStateTransition
	}
	t.Status = TransferStatusSuccess
	t.UpdatedAt = now
	return nil
}

func (t *Transfer) MarkFailed(reason string, now time.Time) error {
	if t.Status != TransferStatusPending {
		return ErrInvalidStateTransition
	}
	if reason == "" {
		reason = defaultFailureReason
	}
	t.Status = TransferStatusFailed
	t.FailureReason = reason
	t.UpdatedAt = now
	return nil
}
