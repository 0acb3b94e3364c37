// Package memory is an in-process implementation of the ledger repositories.
//
// Writes made inside Do are staged on a private transaction and applied by a
// single compare-and-swap step under the store mutex at commit. A staged update
// remembers the version it was read at; if any record moved on in the meantime
// the whole commit is rejected with domain.ErrVersionConflict and nothing is
// applied. Reads return copies, so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger/internal/domain"
	"ledger/internal/repository"
)

type Store struct {
	mu          sync.Mutex
	accounts    map[string]domain.Account
	transfers   map[int64]domain.Transfer
	outbox      map[string]domain.OutboxMessage
	outboxOrder []string
	inbox       map[string]domain.InboxMessage

	discardOutbox bool
}

var _ repository.UnitOfWork = (*Store)(nil)

type Option func(*Store)

// WithoutOutbox drops outbox messages instead of keeping them. Use it when no
// processor drains the store, otherwise every mutation grows the outbox.
func WithoutOutbox() Option {
	return func(s *Store) {
		s.discardOutbox = true
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts:  make(map[string]domain.Account),
		transfers: make(map[int64]domain.Transfer),
		outbox:    make(map[string]domain.OutboxMessage),
		inbox:     make(map[string]domain.InboxMessage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Do(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	if err := fn(ctx, t.repositories()); err != nil {
		return err
	}
	return t.commit()
}

// OutboxMessages returns every outbox message in insertion order.
func (s *Store) OutboxMessages() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]domain.OutboxMessage, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		messages = append(messages, s.outbox[id])
	}
	return messages
}

// InboxMessage returns the committed inbox record for id.
func (s *Store) InboxMessage(id string) (domain.InboxMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.inbox[id]
	return msg, ok
}

func (s *Store) storedAccount(accountNumber string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountNumber]
	return a, ok
}

func (s *Store) storedTransfer(id int64) (domain.Transfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	return t, ok
}

type stagedAccount struct {
	account     domain.Account
	created     bool
	baseVersion int64
}

type stagedTransfer struct {
	transfer    domain.Transfer
	created     bool
	baseVersion int64
}

type tx struct {
	store        *Store
	accounts     map[string]*stagedAccount
	transfers    map[int64]*stagedTransfer
	outbox       []domain.OutboxMessage
	outboxStatus map[string]domain.OutboxMessageStatus
	inbox        map[string]domain.InboxMessage
	inboxStatus  map[string]domain.InboxMessageStatus
}

func newTx(s *Store) *tx {
	return &tx{
		store:        s,
		accounts:     make(map[string]*stagedAccount),
		transfers:    make(map[int64]*stagedTransfer),
		outboxStatus: make(map[string]domain.OutboxMessageStatus),
		inbox:        make(map[string]domain.InboxMessage),
		inboxStatus:  make(map[string]domain.InboxMessageStatus),
	}
}

func (t *tx) repositories() repository.Repositories {
	return repository.Repositories{
		Accounts:  &accountRepository{tx: t},
		Transfers: &transferRepository{tx: t},
		Outbox:    &outboxRepository{tx: t},
		Inbox:     &inboxRepository{tx: t},
	}
}

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for number, st := range t.accounts {
		stored, exists := s.accounts[number]
		if st.created {
			if exists {
				return domain.ErrDuplicateAccountNumber.WithCause(fmt.Errorf("account %s", number))
			}
			continue
		}
		if !exists || stored.Version != st.baseVersion {
			return domain.ErrVersionConflict.WithCause(fmt.Errorf("account %s moved past version %d", number, st.baseVersion))
		}
	}
	for id, st := range t.transfers {
		stored, exists := s.transfers[id]
		if st.created {
			if exists {
				return fmt.Errorf("transfer %d already exists", id)
			}
			continue
		}
		if !exists || stored.Version != st.baseVersion {
			return domain.ErrVersionConflict.WithCause(fmt.Errorf("transfer %d moved past version %d", id, st.baseVersion))
		}
	}
	for id := range t.inbox {
		if _, exists := s.inbox[id]; exists {
			return fmt.Errorf("inbox message with id %s already exists: %w", id, domain.ErrMessageAlreadyProcessed)
		}
	}

	for number, st := range t.accounts {
		s.accounts[number] = st.account
	}
	for id, st := range t.transfers {
		s.transfers[id] = st.transfer
	}
	for _, msg := range t.outbox {
		s.outbox[msg.ID] = msg
		s.outboxOrder = append(s.outboxOrder, msg.ID)
	}
	now := time.Now().UTC()
	for id, status := range t.outboxStatus {
		msg := s.outbox[id]
		msg.Status = status
		if status == domain.OutboxStatusSent {
			msg.SentAt = &now
		}
		s.outbox[id] = msg
	}
	for id, msg := range t.inbox {
		s.inbox[id] = msg
	}
	for id, status := range t.inboxStatus {
		msg := s.inbox[id]
		msg.Status = status
		if status == domain.InboxStatusProcessed {
			msg.ProcessedAt = &now
		}
		s.inbox[id] = msg
	}
	return nil
}

type accountRepository struct {
	tx *tx
}

func (r *accountRepository) CreateAccount(_ context.Context, account *domain.Account) error {
	if _, staged := r.tx.accounts[account.AccountNumber]; staged {
		return domain.ErrDuplicateAccountNumber
	}
	if _, exists := r.tx.store.storedAccount(account.AccountNumber); exists {
		return domain.ErrDuplicateAccountNumber
	}
	r.tx.accounts[account.AccountNumber] = &stagedAccount{account: *account, created: true}
	return nil
}

func (r *accountRepository) GetByAccountNumber(_ context.Context, accountNumber string) (*domain.Account, error) {
	if st, ok := r.tx.accounts[accountNumber]; ok {
		a := st.account
		return &a, nil
	}
	a, ok := r.tx.store.storedAccount(accountNumber)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (r *accountRepository) UpdateAccount(_ context.Context, account *domain.Account) error {
	st, staged := r.tx.accounts[account.AccountNumber]
	var current int64
	if staged {
		current = st.account.Version
	} else {
		stored, ok := r.tx.store.storedAccount(account.AccountNumber)
		if !ok {
			return domain.ErrVersionConflict.WithCause(fmt.Errorf("account %s does not exist", account.AccountNumber))
		}
		current = stored.Version
	}
	if account.Version != current {
		return domain.ErrVersionConflict.WithCause(
			fmt.Errorf("account %s not at version %d", account.AccountNumber, account.Version))
	}

	next := *account
	next.Version = current + 1
	if staged {
		st.account = next
	} else {
		r.tx.accounts[account.AccountNumber] = &stagedAccount{account: next, baseVersion: current}
	}
	account.Version = next.Version
	return nil
}

type transferRepository struct {
	tx *tx
}

func (r *transferRepository) CreateTransfer(_ context.Context, transfer *domain.Transfer) error {
	_, staged := r.tx.transfers[transfer.ID]
	_, exists := r.tx.store.storedTransfer(transfer.ID)
	if staged || exists {
		return fmt.Errorf("transfer %d already exists", transfer.ID)
	}
	r.tx.transfers[transfer.ID] = &stagedTransfer{transfer: *transfer, created: true}
	return nil
}

func (r *transferRepository) GetByID(_ context.Context, id int64) (*domain.Transfer, error) {
	if st, ok := r.tx.transfers[id]; ok {
		t := st.transfer
		return &t, nil
	}
	t, ok := r.tx.store.storedTransfer(id)
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return &t, nil
}

func (r *transferRepository) UpdateTransfer(_ context.Context, transfer *domain.Transfer) error {
	st, staged := r.tx.transfers[transfer.ID]
	var current int64
	if staged {
		current = st.transfer.Version
	} else {
		stored, ok := r.tx.store.storedTransfer(transfer.ID)
		if !ok {
			return domain.ErrVersionConflict.WithCause(fmt.Errorf("transfer %d does not exist", transfer.ID))
		}
		current = stored.Version
	}
	if transfer.Version != current {
		return domain.ErrVersionConflict.WithCause(
			fmt.Errorf("transfer %d not at version %d", transfer.ID, transfer.Version))
	}

	next := *transfer
	next.Version = current + 1
	if staged {
		st.transfer = next
	} else {
		r.tx.transfers[transfer.ID] = &stagedTransfer{transfer: next, baseVersion: current}
	}
	transfer.Version = next.Version
	return nil
}

func (r *transferRepository) ListByAccountNumber(_ context.Context, accountNumber string, limit int) ([]domain.Transfer, error) {
	transfers := r.visible(func(t domain.Transfer) bool {
		return t.FromAccountNumber == accountNumber || t.ToAccountNumber == accountNumber
	})
	sort.Slice(transfers, func(i, j int) bool {
		if !transfers[i].CreatedAt.Equal(transfers[j].CreatedAt) {
			return transfers[i].CreatedAt.After(transfers[j].CreatedAt)
		}
		return transfers[i].ID > transfers[j].ID
	})
	return truncate(transfers, limit), nil
}

func (r *transferRepository) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]domain.Transfer, error) {
	transfers := r.visible(func(t domain.Transfer) bool {
		return t.Status == domain.TransferStatusPending && t.CreatedAt.Before(createdBefore)
	})
	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].CreatedAt.Before(transfers[j].CreatedAt)
	})
	return truncate(transfers, limit), nil
}

// visible merges stored transfers with the ones staged on this transaction.
func (r *transferRepository) visible(match func(domain.Transfer) bool) []domain.Transfer {
	var transfers []domain.Transfer
	r.tx.store.mu.Lock()
	for id, t := range r.tx.store.transfers {
		if _, staged := r.tx.transfers[id]; staged {
			continue
		}
		if match(t) {
			transfers = append(transfers, t)
		}
	}
	r.tx.store.mu.Unlock()
	for _, st := range r.tx.transfers {
		if match(st.transfer) {
			transfers = append(transfers, st.transfer)
		}
	}
	return transfers
}

func truncate(transfers []domain.Transfer, limit int) []domain.Transfer {
	if limit > 0 && len(transfers) > limit {
		return transfers[:limit]
	}
	return transfers
}

type outboxRepository struct {
	tx *tx
}

func (r *outboxRepository) CreateMessage(_ context.Context, msg *domain.OutboxMessage) error {
	if r.tx.store.discardOutbox {
		return nil
	}
	r.tx.outbox = append(r.tx.outbox, *msg)
	return nil
}

func (r *outboxRepository) GetPendingMessages(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s := r.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []domain.OutboxMessage
	for _, id := range s.outboxOrder {
		msg := s.outbox[id]
		if msg.Status != domain.OutboxStatusPending {
			continue
		}
		messages = append(messages, msg)
		if limit > 0 && len(messages) == limit {
			break
		}
	}
	return messages, nil
}

func (r *outboxRepository) UpdateMessageStatus(_ context.Context, id string, status domain.OutboxMessageStatus) error {
	found := false
	for _, msg := range r.tx.outbox {
		if msg.ID == id {
			found = true
			break
		}
	}
	if !found {
		r.tx.store.mu.Lock()
		_, found = r.tx.store.outbox[id]
		r.tx.store.mu.Unlock()
	}
	if !found {
		return fmt.Errorf("no outbox message found with id %s to update status", id)
	}
	r.tx.outboxStatus[id] = status
	return nil
}

type inboxRepository struct {
	tx *tx
}

func (r *inboxRepository) CreateMessage(_ context.Context, msg *domain.InboxMessage) error {
	r.tx.store.mu.Lock()
	_, exists := r.tx.store.inbox[msg.ID]
	r.tx.store.mu.Unlock()
	if _, staged := r.tx.inbox[msg.ID]; staged || exists {
		return fmt.Errorf("inbox message with id %s already exists: %w", msg.ID, domain.ErrMessageAlreadyProcessed)
	}
	r.tx.inbox[msg.ID] = *msg
	return nil
}

func (r *inboxRepository) UpdateStatus(_ context.Context, id string, status domain.InboxMessageStatus) error {
	_, staged := r.tx.inbox[id]
	r.tx.store.mu.Lock()
	_, exists := r.tx.store.inbox[id]
	r.tx.store.mu.Unlock()
	if !staged && !exists {
		return fmt.Errorf("inbox message with id %s not found for status update", id)
	}
	r.tx.inboxStatus[id] = status
	return nil
}
