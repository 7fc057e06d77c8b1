// Package memory implements an in-process transaction store. It backs dry runs
// and tests; nothing survives the process.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/finduo/finduo-sync/pkg/api"
)

// Store keeps users and transactions in memory. It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	users      map[string]int64
	txns       []api.PersistedTransaction
	nextUserID int64
	nextTxnID  int64
}

// New creates an empty store.
func New() *Store {
	return &Store{users: make(map[string]int64)}
}

// EnsureUser implements api.Store.
func (s *Store) EnsureUser(_ context.Context, email, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.users[email]; ok {
		return id, nil
	}
	s.nextUserID++
	s.users[email] = s.nextUserID
	return s.nextUserID, nil
}

// HasTransaction implements api.Store.
func (s *Store) HasTransaction(_ context.Context, key api.DedupKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.txns {
		if t.Key(t.UserID).Equal(key) {
			return true, nil
		}
	}
	return false, nil
}

// InsertTransactions implements api.Store.
func (s *Store) InsertTransactions(_ context.Context, txns []api.PersistedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range txns {
		s.nextTxnID++
		t.ID = s.nextTxnID
		t.OccurredAt = t.OccurredAt.UTC()
		s.txns = append(s.txns, t)
	}
	return nil
}

// ListTransactions implements api.Store.
func (s *Store) ListTransactions(_ context.Context, userID int64) ([]api.PersistedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []api.PersistedTransaction
	for _, t := range s.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b api.PersistedTransaction) int {
		if c := b.OccurredAt.Compare(a.OccurredAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// Close implements api.Store.
func (s *Store) Close() error {
	return nil
}
