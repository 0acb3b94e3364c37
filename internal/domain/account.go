package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "ACTIVE"
	AccountStatusDeleted AccountStatus = "DELETED"
)

// Account is identified by its account number. Version is the optimistic
// concurrency token: repositories bump it on every committed update and reject
// updates carrying a stale value.
type Account struct {
	AccountNumber string
	HolderName    string
	Balance       decimal.Decimal
	Status        AccountStatus
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewAccount(accountNumber, holderName string, initialBalance decimal.Decimal, now time.Time) (*Account, error) {
	if strings.TrimSpace(holderName) == "" {
		return nil, ErrInvalidHolderName
	}
	if initialBalance.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return &Account{
		AccountNumber: accountNumber,
		HolderName:    holderName,
		Balance:       initialBalance,
		Status:        AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (a *Account) IsDeleted() bool {
	return a.Status == AccountStatusDeleted
}

func (a *Account) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

func (a *Account) MarkDeleted(now time.Time) {
	a.Status = AccountStatusDeleted
	a.UpdatedAt = now
}
