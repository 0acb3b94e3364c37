package outbox

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
	"ledger/internal/domain/event"
	"ledger/internal/util"
)

func NewAccountMessage(topic, messageType string, account *domain.Account, amount decimal.Decimal, now time.Time) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event.AccountEvent{
		AccountNumber: account.AccountNumber,
		HolderName:    account.HolderName,
		Amount:        amount,
		Balance:       account.Balance,
		Version:       account.Version,
		Timestamp:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}
	return newMessage(topic, messageType, event.AggregateAccount, account.AccountNumber, payload, now), nil
}

func NewTransferMessage(topic, messageType string, transfer *domain.Transfer, now time.Time) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event.TransferEvent{
		TransferID:        transfer.ID,
		FromAccountNumber: transfer.FromAccountNumber,
		ToAccountNumber:   transfer.ToAccountNumber,
		Amount:            transfer.Amount,
		Status:            string(transfer.Status),
		FailureReason:     transfer.FailureReason,
		Timestamp:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}
	id := strconv.FormatInt(transfer.ID, 10)
	return newMessage(topic, messageType, event.AggregateTransfer, id, payload, now), nil
}

func newMessage(topic, messageType, aggregateType, aggregateID string, payload []byte, now time.Time) *domain.OutboxMessage {
	return &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		MessageType:   messageType,
		Topic:         topic,
		Key:           aggregateID,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     now,
	}
}
