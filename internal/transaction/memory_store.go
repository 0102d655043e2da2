package transaction

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Transaction
	all  []*Transaction // insertion order (ascending timestamps in practice)
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Transaction)}
}

func (s *MemoryStore) Create(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tx
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	s.byID[cp.ID] = &cp
	s.all = append(s.all, &cp)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) ListByAccount(_ context.Context, accountID string, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var result []*Transaction
	for i := len(s.all) - 1; i >= 0 && len(result) < limit; i-- {
		tx := s.all[i]
		if tx.SourceAccountID == accountID || tx.TargetAccountID == accountID {
			cp := *tx
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListBySourceSince(_ context.Context, accountID string, since time.Time) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Transaction
	for _, tx := range s.all {
		if tx.SourceAccountID == accountID && !tx.Timestamp.Before(since) {
			cp := *tx
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListSince(_ context.Context, since time.Time, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 1000
	}

	var result []*Transaction
	for _, tx := range s.all {
		if !tx.Timestamp.Before(since) {
			cp := *tx
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var result []*Transaction
	for i := len(s.all) - 1; i >= 0 && len(result) < limit; i-- {
		if s.all[i].Status == status {
			cp := *s.all[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if tx.Status != from {
		return ErrStatusAlreadySet
	}
	tx.Status = to
	return nil
}
