package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
	"ledger/internal/repository"
)

func newAccount(t *testing.T, number string) *domain.Account {
	t.Helper()
	a, err := domain.NewAccount(number, "holder", decimal.NewFromInt(100), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func mustDo(t *testing.T, s *Store, fn repository.TxFunc) {
	t.Helper()
	if err := s.Do(context.Background(), fn); err != nil {
		t.Fatal(err)
	}
}

func TestRollbackDiscardsEveryWrite(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")
	err := s.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Accounts.CreateAccount(ctx, newAccount(t, "acc1")); err != nil {
			return err
		}
		if err := repos.Outbox.CreateMessage(ctx, &domain.OutboxMessage{ID: "m1", Status: domain.OutboxStatusPending}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Accounts.GetByAccountNumber(ctx, "acc1"); !errors.Is(err, domain.ErrAccountNotFound) {
			t.Fatalf("rolled back account is visible: %v", err)
		}
		return nil
	})
	if len(s.OutboxMessages()) != 0 {
		t.Fatal("rolled back outbox message is visible")
	}
}

func TestDuplicateAccountNumber(t *testing.T) {
	s := NewStore()
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Accounts.CreateAccount(ctx, newAccount(t, "acc1"))
	})
	err := s.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		return repos.Accounts.CreateAccount(ctx, newAccount(t, "acc1"))
	})
	if !errors.Is(err, domain.ErrDuplicateAccountNumber) {
		t.Fatalf("want ErrDuplicateAccountNumber, got %v", err)
	}
}

func TestUpdateAccountCompareAndSwap(t *testing.T) {
	s := NewStore()
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Accounts.CreateAccount(ctx, newAccount(t, "acc1"))
	})

	var stale *domain.Account
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		stale, err = repos.Accounts.GetByAccountNumber(ctx, "acc1")
		return err
	})

	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		a, err := repos.Accounts.GetByAccountNumber(ctx, "acc1")
		if err != nil {
			return err
		}
		a.Balance = decimal.NewFromInt(50)
		if err := repos.Accounts.UpdateAccount(ctx, a); err != nil {
			return err
		}
		if a.Version != 1 {
			t.Fatalf("version after update=%d want 1", a.Version)
		}
		return nil
	})

	stale.Balance = decimal.NewFromInt(1)
	err := s.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		return repos.Accounts.UpdateAccount(ctx, stale)
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale write: want ErrVersionConflict, got %v", err)
	}

	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		a, err := repos.Accounts.GetByAccountNumber(ctx, "acc1")
		if err != nil {
			return err
		}
		if !a.Balance.Equal(decimal.NewFromInt(50)) || a.Version != 1 {
			t.Fatalf("stale write leaked: balance=%s version=%d", a.Balance, a.Version)
		}
		return nil
	})
}

func TestCommitRejectsWriteRacingAnotherCommit(t *testing.T) {
	s := NewStore()
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Accounts.CreateAccount(ctx, newAccount(t, "acc1"))
	})

	err := s.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		a, err := repos.Accounts.GetByAccountNumber(ctx, "acc1")
		if err != nil {
			return err
		}
		if err := repos.Accounts.UpdateAccount(ctx, a); err != nil {
			return err
		}
		// Another unit of work commits between our staged update and our commit.
		mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
			b, err := repos.Accounts.GetByAccountNumber(ctx, "acc1")
			if err != nil {
				return err
			}
			return repos.Accounts.UpdateAccount(ctx, b)
		})
		return nil
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict at commit, got %v", err)
	}
}

func TestInboxDeduplicates(t *testing.T) {
	s := NewStore()
	msg := &domain.InboxMessage{ID: "evt-1", Status: domain.InboxStatusProcessed}
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Inbox.CreateMessage(ctx, msg)
	})
	err := s.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		return repos.Inbox.CreateMessage(ctx, msg)
	})
	if !errors.Is(err, domain.ErrMessageAlreadyProcessed) {
		t.Fatalf("want ErrMessageAlreadyProcessed, got %v", err)
	}
}

func TestOutboxPendingAndSent(t *testing.T) {
	s := NewStore()
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		for _, id := range []string{"m1", "m2", "m3"} {
			if err := repos.Outbox.CreateMessage(ctx, &domain.OutboxMessage{ID: id, Status: domain.OutboxStatusPending}); err != nil {
				return err
			}
		}
		return nil
	})
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		pending, err := repos.Outbox.GetPendingMessages(ctx, 2)
		if err != nil {
			return err
		}
		if len(pending) != 2 || pending[0].ID != "m1" || pending[1].ID != "m2" {
			t.Fatalf("pending=%+v", pending)
		}
		return repos.Outbox.UpdateMessageStatus(ctx, "m1", domain.OutboxStatusSent)
	})

	msgs := s.OutboxMessages()
	if msgs[0].Status != domain.OutboxStatusSent || msgs[0].SentAt == nil {
		t.Fatalf("m1 not marked sent: %+v", msgs[0])
	}
	if msgs[1].Status != domain.OutboxStatusPending {
		t.Fatalf("m2 status=%s", msgs[1].Status)
	}
	err := s.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		return repos.Outbox.UpdateMessageStatus(ctx, "missing", domain.OutboxStatusSent)
	})
	if err == nil {
		t.Fatal("updating an unknown message should fail")
	}
}

func TestListStalePending(t *testing.T) {
	s := NewStore()
	now := time.Now().UTC()
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		for i, age := range []time.Duration{time.Hour, 2 * time.Hour, 0} {
			tr, err := domain.NewTransfer(int64(i+1), "a", "b", decimal.NewFromInt(1), now.Add(-age))
			if err != nil {
				return err
			}
			if err := repos.Transfers.CreateTransfer(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		stale, err := repos.Transfers.ListStalePending(ctx, now.Add(-time.Minute), 10)
		if err != nil {
			return err
		}
		if len(stale) != 2 || stale[0].ID != 2 || stale[1].ID != 1 {
			t.Fatalf("stale=%+v, want oldest first", stale)
		}
		return nil
	})
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewStore().Do(ctx, func(context.Context, repository.Repositories) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestWithoutOutboxDiscardsMessages(t *testing.T) {
	s := NewStore(WithoutOutbox())
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Accounts.CreateAccount(ctx, newAccount(t, "acc1")); err != nil {
			return err
		}
		return repos.Outbox.CreateMessage(ctx, &domain.OutboxMessage{ID: "m1", Status: domain.OutboxStatusPending})
	})
	if msgs := s.OutboxMessages(); len(msgs) != 0 {
		t.Fatalf("outbox kept %d messages", len(msgs))
	}
	mustDo(t, s, func(ctx context.Context, repos repository.Repositories) error {
		pending, err := repos.Outbox.GetPendingMessages(ctx, 10)
		if err != nil {
			return err
		}
		if len(pending) != 0 {
			t.Fatalf("pending=%d want 0", len(pending))
		}
		_, err = repos.Accounts.GetByAccountNumber(ctx, "acc1")
		return err
	})
}
