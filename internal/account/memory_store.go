package account

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	order    []string // creation order
}

// NewMemoryStore creates an in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

func (s *MemoryStore) Create(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acct
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.State == "" {
		cp.State = StateActive
	}
	s.accounts[cp.ID] = &cp
	s.order = append(s.order, cp.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) UpdateState(_ context.Context, id string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if acct.State != from {
		return ErrInvalidTransition
	}
	acct.State = to
	return nil
}

func (s *MemoryStore) UpdateRiskScore(_ context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.RiskScore = score
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	// Newest first
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.accounts[ids[i]].CreatedAt.After(s.accounts[ids[j]].CreatedAt)
	})

	var result []*Account
	for i := offset; i < len(ids) && len(result) < limit; i++ {
		cp := *s.accounts[ids[i]]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) ListByState(_ context.Context, state State, limit int) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var result []*Account
	for _, id := range s.order {
		acct := s.accounts[id]
		if acct.State == state {
			cp := *acct
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) ListHighRisk(_ context.Context, threshold float64, limit int) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var result []*Account
	for _, id := range s.order {
		acct := s.accounts[id]
		if acct.RiskScore >= threshold {
			cp := *acct
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].RiskScore > result[j].RiskScore })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
