package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/accounts_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/outbox_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/transactions_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/users_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

type stagedAccount struct {
	account     domain.Account
	baseVersion int64
	created     bool
}

type stagedStatus struct {
	status domain.OutboxMessageStatus
	sentAt *time.Time
}

// txn is a unit of work over a Store. With autoCommit set every write is committed
// as soon as it is staged.
type txn struct {
	store      *Store
	autoCommit bool

	mu            sync.Mutex
	accounts      map[string]stagedAccount
	createdOrder  []string
	users         []domain.User
	records       []*domain.TransactionRecord
	outboxCreated []domain.OutboxMessage
	outboxStatus  map[string]stagedStatus
}

func newTxn(s *Store, autoCommit bool) *txn {
	t := &txn{store: s, autoCommit: autoCommit}
	t.reset()
	return t
}

func (t *txn) reset() {
	t.accounts = make(map[string]stagedAccount)
	t.createdOrder = nil
	t.users = nil
	t.records = nil
	t.outboxCreated = nil
	t.outboxStatus = make(map[string]stagedStatus)
}

// flush commits the staged writes when running in auto-commit mode.
func (t *txn) flush() error {
	if !t.autoCommit {
		return nil
	}
	defer t.reset()
	return t.store.commit(t)
}

func (t *txn) Accounts() accounts_repo.AccountRepository { return accountRepo{t} }
func (t *txn) Transactions() transactions_repo.TransactionRepository { return transactionRepo{t} }
func (t *txn) Users() users_repo.UserRepository { return userRepo{t} }
func (t *txn) Outbox() outbox_repo.OutboxRepository { return outboxRepo{t} }

// current returns the account as seen by this unit of work.
func (t *txn) current(id string) (stagedAccount, error) {
	if staged, ok := t.accounts[id]; ok {
		return staged, nil
	}
	acc, ok := t.store.committedAccount(id)
	if !ok {
		return stagedAccount{}, domain.ErrAccountNotFound
	}
	return stagedAccount{account: acc, baseVersion: acc.Version}, nil
}

func (t *txn) userExists(id string) bool {
	for _, u := range t.users {
		if u.ID == id {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.users[id]
	return ok
}

type accountRepo struct{ t *txn }

func (r accountRepo) CreateAccount(_ context.Context, ownerID string) (*domain.Account, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	if !r.t.userExists(ownerID) {
		return nil, domain.ErrUserNotFound
	}
	now := r.t.store.now().UTC()
	acc := domain.Account{
		ID:        util.GenerateUUID(),
		OwnerID:   ownerID,
		Version:   1,
		Status:    domain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.t.accounts[acc.ID] = stagedAccount{account: acc, created: true}
	r.t.createdOrder = append(r.t.createdOrder, acc.ID)
	if err := r.t.flush(); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r accountRepo) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	staged, err := r.t.current(id)
	if err != nil {
		return nil, err
	}
	acc := staged.account
	return &acc, nil
}

func (r accountRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.Account, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	out := r.t.store.committedOwnerAccounts(ownerID)
	for i := range out {
		if staged, ok := r.t.accounts[out[i].ID]; ok {
			out[i] = staged.account
		}
	}
	for _, id := range r.t.createdOrder {
		if acc := r.t.accounts[id].account; acc.OwnerID == ownerID {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r accountRepo) UpdateBalance(_ context.Context, id string, expectedVersion int64, newBalance int64) (*domain.Account, error) {
	if newBalance < 0 {
		return nil, fmt.Errorf("refusing negative balance %d for account %s: %w", newBalance, id, domain.ErrInvariantViolation)
	}
	return r.update(id, expectedVersion, func(acc *domain.Account) { acc.Balance = newBalance })
}

func (r accountRepo) UpdateStatus(_ context.Context, id string, expectedVersion int64, status domain.AccountStatus) (*domain.Account, error) {
	return r.update(id, expectedVersion, func(acc *domain.Account) { acc.Status = status })
}

func (r accountRepo) update(id string, expectedVersion int64, mutate func(*domain.Account)) (*domain.Account, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	staged, err := r.t.current(id)
	if err != nil {
		return nil, err
	}
	if staged.account.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}
	mutate(&staged.account)
	staged.account.Version++
	staged.account.UpdatedAt = r.t.store.now().UTC()
	r.t.accounts[id] = staged
	if err := r.t.flush(); err != nil {
		return nil, err
	}
	acc := staged.account
	return &acc, nil
}

type transactionRepo struct{ t *txn }

// Append stages rec. Its Seq is assigned when the unit of work commits, and staged
// records are not visible to ListByAccount before that.
func (r transactionRepo) Append(_ context.Context, rec *domain.TransactionRecord) (string, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	for _, id := range rec.AccountIDs() {
		if _, err := r.t.current(id); err != nil {
			return "", fmt.Errorf("transaction %s: %w", rec.ID, domain.ErrReferentialIntegrity)
		}
	}
	if rec.ID == "" {
		rec.ID = util.GenerateUUID()
	}
	r.t.records = append(r.t.records, rec)
	if err := r.t.flush(); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (r transactionRepo) ListByAccount(_ context.Context, accountID string, page domain.Page) ([]domain.TransactionRecord, error) {
	return r.t.store.listRecords(accountID, page), nil
}

func (r transactionRepo) LastN(_ context.Context, accountID string, n int) ([]domain.TransactionRecord, error) {
	if n <= 0 {
		return []domain.TransactionRecord{}, nil
	}
	return r.t.store.listRecords(accountID, domain.Page{Limit: n}), nil
}

type userRepo struct{ t *txn }

func (r userRepo) CreateUser(_ context.Context, user *domain.User) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	for _, u := range r.t.users {
		if u.Username == user.Username {
			return domain.ErrUserAlreadyExists
		}
	}
	r.t.store.mu.RLock()
	_, taken := r.t.store.usernames[user.Username]
	r.t.store.mu.RUnlock()
	if taken {
		return domain.ErrUserAlreadyExists
	}
	r.t.users = append(r.t.users, *user)
	return r.t.flush()
}

func (r userRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	for _, u := range r.t.users {
		if u.ID == id {
			user := u
			return &user, nil
		}
	}
	r.t.store.mu.RLock()
	defer r.t.store.mu.RUnlock()
	u, ok := r.t.store.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r userRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	for _, u := range r.t.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	r.t.store.mu.RLock()
	defer r.t.store.mu.RUnlock()
	id, ok := r.t.store.usernames[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := r.t.store.users[id]
	return &u, nil
}

type outboxRepo struct{ t *txn }

func (r outboxRepo) CreateMessage(_ context.Context, msg *domain.OutboxMessage) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	r.t.outboxCreated = append(r.t.outboxCreated, *msg)
	return r.t.flush()
}

func (r outboxRepo) GetPendingMessages(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	var out []domain.OutboxMessage
	for _, msg := range r.t.store.pendingOutbox() {
		if _, touched := r.t.outboxStatus[msg.ID]; touched {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r outboxRepo) UpdateMessageStatus(_ context.Context, id string, status domain.OutboxMessageStatus) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	r.t.store.mu.RLock()
	_, ok := r.t.store.outboxIndex[id]
	r.t.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no outbox message found with id %s to update status", id)
	}
	st := stagedStatus{status: status}
	if status == domain.OutboxStatusSent {
		now := r.t.store.now().UTC()
		st.sentAt = &now
	}
	r.t.outboxStatus[id] = st
	return r.t.flush()
}
