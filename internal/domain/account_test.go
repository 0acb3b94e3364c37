package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewAccount(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		holder  string
		initial string
		want    error
	}{
		{"valid", "Alice", "10", nil},
		{"zero opening balance", "Alice", "0", nil},
		{"blank holder", " \t", "10", ErrInvalidHolderName},
		{"negative opening balance", "Alice", "-0.01", ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAccount("0123456789ab", tt.holder, d(tt.initial), now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
			if tt.want == nil && (a.Status != AccountStatusActive || a.Version != 0 || !a.Balance.Equal(d(tt.initial))) {
				t.Fatalf("unexpected account %+v", a)
			}
		})
	}
}

func TestAccountDepositWithdraw(t *testing.T) {
	a, err := NewAccount("0123456789ab", "Alice", d("100"), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Deposit(d("0.5")); err != nil {
		t.Fatal(err)
	}
	if err := a.Withdraw(d("100.5")); err != nil {
		t.Fatal(err)
	}
	if !a.Balance.IsZero() {
		t.Fatalf("balance=%s want 0", a.Balance)
	}

	tests := []struct {
		name   string
		op     func(decimal.Decimal) error
		amount string
		want   error
	}{
		{"deposit zero", a.Deposit, "0", ErrInvalidAmount},
		{"deposit negative", a.Deposit, "-1", ErrInvalidAmount},
		{"withdraw zero", a.Withdraw, "0", ErrInvalidAmount},
		{"withdraw more than balance", a.Withdraw, "0.01", ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(d(tt.amount)); !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
			if !a.Balance.IsZero() {
				t.Fatalf("rejected operation changed balance to %s", a.Balance)
			}
		})
	}
}

func TestAccountMarkDeleted(t *testing.T) {
	a, _ := NewAccount("0123456789ab", "Alice", d("1"), time.Now())
	later := time.Now().Add(time.Minute)
	a.MarkDeleted(later)
	if !a.IsDeleted() || !a.UpdatedAt.Equal(later) {
		t.Fatalf("status=%s updated_at=%s", a.Status, a.UpdatedAt)
	}
}
