package audit

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
// Append order is the authoritative order.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   []*Entry
	byAccount map[string][]*Entry
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAccount: make(map[string][]*Entry)}
}

func (s *MemoryStore) Append(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.Details = append([]byte(nil), e.Details...)
	s.entries = append(s.entries, &cp)
	s.byAccount[e.AccountID] = append(s.byAccount[e.AccountID], &cp)
	return nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byAccount[accountID]
	result := make([]*Entry, 0, len(all))
	for _, e := range all {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.entries) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	result := make([]*Entry, 0, len(s.entries)-start)
	for i := len(s.entries) - 1; i >= start; i-- {
		cp := *s.entries[i]
		result = append(result, &cp)
	}
	return result, nil
}
