package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Message types published on the ledger events topic.
const (
	TypeAccountCreated    = "account.created"
	TypeAccountDeposited  = "account.deposited"
	TypeAccountWithdrawn  = "account.withdrawn"
	TypeTransferSucceeded = "transfer.succeeded"
	TypeTransferFailed    = "transfer.failed"
)

// Lifecycle event types consumed from the account lifecycle topic.
const (
	TypeAccountDeleted = "account.deleted"
)

const (
	AggregateAccount  = "account"
	AggregateTransfer = "transfer"
)

// AccountLifecycleEvent is owned by an external account management service.
type AccountLifecycleEvent struct {
	EventID       string    `json:"event_id"`
	AccountNumber string    `json:"account_number"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type AccountEvent struct {
	AccountNumber string          `json:"account_number"`
	HolderName    string          `json:"holder_name"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Version       int64           `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
}

type TransferEvent struct {
	TransferID        int64           `json:"transfer_id"`
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}
