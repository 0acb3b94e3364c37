package transfers

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/domain/event"
	"ledger/internal/repository"
	"ledger/internal/repository/memory"
)

func insertPending(t *testing.T, store *memory.Store, id int64, createdAt time.Time) {
	t.Helper()
	err := store.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		tr, err := domain.NewTransfer(id, accA, accB, dec("1"), createdAt)
		if err != nil {
			return err
		}
		return repos.Transfers.CreateTransfer(ctx, tr)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func getTransfer(t *testing.T, store *memory.Store, id int64) *domain.Transfer {
	t.Helper()
	var tr *domain.Transfer
	err := store.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		var err error
		tr, err = repos.Transfers.GetByID(ctx, id)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestReconcileOnceFailsStalePendingTransfers(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	insertPending(t, store, 1, now.Add(-time.Hour))
	insertPending(t, store, 2, now.Add(-2*time.Hour))
	insertPending(t, store, 3, now)

	r := NewReconciler(store, nil, eventsTopic, time.Minute, 10*time.Minute, zap.NewNop())
	n, err := r.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("reconciled=%d want=2", n)
	}

	for _, id := range []int64{1, 2} {
		tr := getTransfer(t, store, id)
		if tr.Status != domain.TransferStatusFailed || tr.FailureReason != "stale pending transfer" {
			t.Fatalf("transfer %d status=%s reason=%q", id, tr.Status, tr.FailureReason)
		}
	}
	if tr := getTransfer(t, store, 3); tr.Status != domain.TransferStatusPending {
		t.Fatalf("fresh transfer was touched: %s", tr.Status)
	}

	failedEvents := 0
	for _, m := range store.OutboxMessages() {
		if m.MessageType == event.TypeTransferFailed {
			failedEvents++
		}
	}
	if failedEvents != 2 {
		t.Fatalf("transfer.failed messages=%d want=2", failedEvents)
	}

	if n, err := r.ReconcileOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("second pass reconciled=%d err=%v, want 0/nil", n, err)
	}
}

func TestReconcileLeavesSettledTransfersAlone(t *testing.T) {
	store := memory.NewStore()
	seedAccount(t, store, accA, "10")
	seedAccount(t, store, accB, "0")
	res, err := newService(t, store, 10, nil).Transfer(context.Background(), accA, accB, dec("1"))
	if err != nil {
		t.Fatal(err)
	}

	// staleAfter of zero treats everything as old.
	r := NewReconciler(store, nil, eventsTopic, time.Minute, 0, zap.NewNop())
	if n, err := r.ReconcileOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("reconciled=%d err=%v, want 0/nil", n, err)
	}
	if tr := getTransfer(t, store, res.Transfer.ID); tr.Status != domain.TransferStatusSuccess {
		t.Fatalf("status=%s want SUCCESS", tr.Status)
	}
}

func TestReconcilerStopsOnCancel(t *testing.T) {
	r := NewReconciler(memory.NewStore(), nil, eventsTopic, time.Millisecond, time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}
