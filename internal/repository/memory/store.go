// Package memory is an in-process implementation of the repositories with the
// same atomicity and version semantics as the Postgres backend.
//
// A unit of work stages its writes privately. Commit takes the store lock once,
// checks that every account the unit of work touched still has the version it was
// read at, and then applies everything or nothing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	accounts     map[string]domain.Account
	ownerIndex   map[string][]string
	users        map[string]domain.User
	usernames    map[string]string
	records      []domain.TransactionRecord
	accountIndex map[string][]int
	outbox       []domain.OutboxMessage
	outboxIndex  map[string]int

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]domain.Account),
		ownerIndex:   make(map[string][]string),
		users:        make(map[string]domain.User),
		usernames:    make(map[string]string),
		accountIndex: make(map[string][]int),
		outboxIndex:  make(map[string]int),
		now:          time.Now,
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	tx := newTxn(s, false)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) Repositories() repository.Repositories {
	return newTxn(s, true)
}

// commit validates the staged writes of tx against the committed state and applies
// them atomically.
func (s *Store) commit(tx *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, staged := range tx.accounts {
		if staged.created {
			continue
		}
		current, ok := s.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if current.Version != staged.baseVersion {
			return domain.ErrVersionConflict
		}
	}
	for _, u := range tx.users {
		if _, taken := s.usernames[u.Username]; taken {
			return domain.ErrUserAlreadyExists
		}
	}
	for _, rec := range tx.records {
		for _, id := range rec.AccountIDs() {
			if _, ok := s.accounts[id]; ok {
				continue
			}
			if staged, ok := tx.accounts[id]; ok && staged.created {
				continue
			}
			return domain.ErrReferentialIntegrity
		}
	}

	for _, u := range tx.users {
		s.users[u.ID] = u
		s.usernames[u.Username] = u.ID
	}
	for _, id := range tx.createdOrder {
		acc := tx.accounts[id].account
		s.ownerIndex[acc.OwnerID] = append(s.ownerIndex[acc.OwnerID], id)
	}
	for id, staged := range tx.accounts {
		s.accounts[id] = staged.account
	}
	for _, rec := range tx.records {
		rec.Seq = int64(len(s.records) + 1)
		s.records = append(s.records, *rec)
		idx := len(s.records) - 1
		for _, id := range rec.AccountIDs() {
			s.accountIndex[id] = append(s.accountIndex[id], idx)
		}
	}
	for _, msg := range tx.outboxCreated {
		s.outboxIndex[msg.ID] = len(s.outbox)
		s.outbox = append(s.outbox, msg)
	}
	for id, status := range tx.outboxStatus {
		idx, ok := s.outboxIndex[id]
		if !ok {
			continue
		}
		s.outbox[idx].Status = status.status
		s.outbox[idx].SentAt = status.sentAt
	}
	return nil
}

func (s *Store) committedAccount(id string) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	return acc, ok
}

func (s *Store) committedOwnerAccounts(ownerID string) []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.ownerIndex[ownerID]
	out := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.accounts[id])
	}
	return out
}

func (s *Store) listRecords(accountID string, page domain.Page) []domain.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.accountIndex[accountID]
	out := []domain.TransactionRecord{}
	for i := len(idxs) - 1; i >= 0; i-- {
		rec := s.records[idxs[i]]
		if page.BeforeSeq > 0 && rec.Seq >= page.BeforeSeq {
			continue
		}
		out = append(out, rec)
		if page.Limit > 0 && len(out) == page.Limit {
			break
		}
	}
	return out
}

// pendingOutbox lists unsent messages in commit order.
func (s *Store) pendingOutbox() []domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OutboxMessage
	for _, msg := range s.outbox {
		if msg.Status == domain.OutboxStatusPending {
			out = append(out, msg)
		}
	}
	return out
}

// OutboxMessages returns a copy of every outbox message in insertion order.
func (s *Store) OutboxMessages() []domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OutboxMessage, len(s.outbox))
	copy(out, s.outbox)
	return out
}

var _ repository.TxManager = (*Store)(nil)
