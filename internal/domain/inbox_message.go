package domain

import (
	"errors"
	"time"
)

type InboxMessageStatus string

const (
	InboxStatusNew       InboxMessageStatus = "NEW"
	InboxStatusProcessed InboxMessageStatus = "PROCESSED"
	InboxStatusFailed    InboxMessageStatus = "FAILED"
)

// InboxMessage records a consumed Kafka event so that redelivery is applied once.
type InboxMessage struct {
	ID             string
	KafkaTopic     string
	KafkaPartition int
	KafkaOffset    int64
	Payload        []byte
	Status         InboxMessageStatus
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

var ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
