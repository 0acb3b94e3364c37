package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/domain/event"
)

type fakeAccountService struct {
	applyFunc func(ctx context.Context, evt event.AccountLifecycleEvent, msg domain.InboxMessage) error
	calls     int
	rejectErr error
	rejected  []string
}

func (f *fakeAccountService) CreateAccount(context.Context, string, decimal.Decimal) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountService) GetAccount(context.Context, string) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountService) Deposit(context.Context, string, decimal.Decimal) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountService) Withdraw(context.Context, string, decimal.Decimal) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountService) ApplyLifecycleEvent(ctx context.Context, evt event.AccountLifecycleEvent, msg domain.InboxMessage) error {
	f.calls++
	if f.applyFunc != nil {
		return f.applyFunc(ctx, evt, msg)
	}
	return nil
}

func (f *fakeAccountService) RejectLifecycleEvent(_ context.Context, msg domain.InboxMessage, _ string) error {
	if f.rejectErr != nil {
		return f.rejectErr
	}
	f.rejected = append(f.rejected, msg.ID)
	return nil
}

func TestAccountLifecycleMessageHandler(t *testing.T) {
	boom := errors.New("db down")
	tests := []struct {
		name      string
		value     string
		applyErr     error
		wantCalls    int
		wantRejected string
		wantErr      bool
	}{
		{"applied", `{"event_id":"e1","account_number":"acc000000001","type":"account.deleted"}`, nil, 1, "", false},
		{"malformed payload is skipped", `{not json`, nil, 0, "", false},
		{"missing event id is skipped", `{"account_number":"acc000000001","type":"account.deleted"}`, nil, 0, "", false},
		{"unknown type is rejected", `{"event_id":"e2","account_number":"acc000000001","type":"account.renamed"}`, nil, 0, "e2", false},
		{"unknown account is rejected", `{"event_id":"e3","account_number":"nope","type":"account.deleted"}`, domain.ErrAccountNotFound, 1, "e3", false},
		{"storage failure is redelivered", `{"event_id":"e4","account_number":"acc000000001","type":"account.deleted"}`, boom, 1, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAccountService{applyFunc: func(context.Context, event.AccountLifecycleEvent, domain.InboxMessage) error {
				return tt.applyErr
			}}
			handler := AccountLifecycleMessageHandler(svc, zap.NewNop())
			err := handler(context.Background(), kafka.Message{Topic: "account_lifecycle", Partition: 2, Offset: 40, Value: []byte(tt.value)})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, boom) {
				t.Fatalf("error should wrap the cause, got %v", err)
			}
			if svc.calls != tt.wantCalls {
				t.Fatalf("calls=%d want=%d", svc.calls, tt.wantCalls)
			}
			if tt.wantRejected == "" && len(svc.rejected) != 0 {
				t.Fatalf("unexpected rejections %v", svc.rejected)
			}
			if tt.wantRejected != "" && (len(svc.rejected) != 1 || svc.rejected[0] != tt.wantRejected) {
				t.Fatalf("rejected=%v want [%s]", svc.rejected, tt.wantRejected)
			}
		})
	}
}

func TestAccountLifecycleMessageHandlerRedeliversWhenRejectFails(t *testing.T) {
	boom := errors.New("db down")
	svc := &fakeAccountService{rejectErr: boom}
	handler := AccountLifecycleMessageHandler(svc, zap.NewNop())
	value := []byte(`{"event_id":"e5","account_number":"acc000000001","type":"account.renamed"}`)
	err := handler(context.Background(), kafka.Message{Topic: "account_lifecycle", Value: value})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped storage error, got %v", err)
	}
}

func TestAccountLifecycleMessageHandlerBuildsInboxMessage(t *testing.T) {
	var got domain.InboxMessage
	svc := &fakeAccountService{applyFunc: func(_ context.Context, _ event.AccountLifecycleEvent, msg domain.InboxMessage) error {
		got = msg
		return nil
	}}
	value := []byte(`{"event_id":"evt-9","account_number":"acc000000001","type":"account.deleted"}`)
	handler := AccountLifecycleMessageHandler(svc, zap.NewNop())
	if err := handler(context.Background(), kafka.Message{Topic: "account_lifecycle", Partition: 1, Offset: 7, Value: value}); err != nil {
		t.Fatal(err)
	}
	if got.ID != "evt-9" || got.KafkaTopic != "account_lifecycle" || got.KafkaPartition != 1 || got.KafkaOffset != 7 {
		t.Fatalf("unexpected inbox message %+v", got)
	}
	if got.Status != domain.InboxStatusNew || string(got.Payload) != string(value) {
		t.Fatalf("unexpected inbox message %+v", got)
	}
}
