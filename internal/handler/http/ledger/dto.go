package ledger_http

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/app/transfers"
	"ledger/internal/domain"
)

type CreateAccountRequest struct {
	HolderName     string          `json:"holder_name" validate:"required,max=200"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	FromAccountNumber string          `json:"from_account_number" validate:"required,max=64"`
	ToAccountNumber   string          `json:"to_account_number" validate:"required,max=64"`
	Amount            decimal.Decimal `json:"amount"`
}

type AccountResponse struct {
	AccountNumber string          `json:"account_number"`
	HolderName    string          `json:"holder_name"`
	Balance       decimal.Decimal `json:"balance"`
	Status        string          `json:"status"`
	Version       int64           `json:"version"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// TransferResponse carries the id as a string: snowflake ids overflow the
// integers JavaScript clients can represent.
type TransferResponse struct {
	TransferID         string           `json:"transfer_id"`
	FromAccountNumber  string           `json:"from_account_number"`
	ToAccountNumber    string           `json:"to_account_number"`
	Amount             decimal.Decimal  `json:"amount"`
	Status             string           `json:"status"`
	FailureReason      string           `json:"failure_reason,omitempty"`
	FromAccountBalance *decimal.Decimal `json:"from_account_balance,omitempty"`
	ToAccountBalance   *decimal.Decimal `json:"to_account_balance,omitempty"`
	CreatedAt          string           `json:"created_at"`
	UpdatedAt          string           `json:"updated_at"`
}

func newAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		AccountNumber: a.AccountNumber,
		HolderName:    a.HolderName,
		Balance:       a.Balance,
		Status:        string(a.Status),
		Version:       a.Version,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     a.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func newTransferResponse(t *domain.Transfer) TransferResponse {
	return TransferResponse{
		TransferID:        strconv.FormatInt(t.ID, 10),
		FromAccountNumber: t.FromAccountNumber,
		ToAccountNumber:   t.ToAccountNumber,
		Amount:            t.Amount,
		Status:            string(t.Status),
		FailureReason:     t.FailureReason,
		CreatedAt:         t.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:         t.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func newTransferResultResponse(r *transfers.TransferResult) TransferResponse {
	resp := newTransferResponse(r.Transfer)
	from, to := r.FromAccountBalance, r.ToAccountBalance
	resp.FromAccountBalance = &from
	resp.ToAccountBalance = &to
	return resp
}
