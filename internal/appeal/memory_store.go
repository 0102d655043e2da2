package appeal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.Mutex
	appeals map[string]*Appeal
}

// NewMemoryStore creates an in-memory appeal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appeals: make(map[string]*Appeal)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Appeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.appeals {
		if existing.AccountID == a.AccountID && existing.Status == StatusPending {
			return ErrAlreadyPending
		}
	}
	cp := *a
	s.appeals[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appeals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id string, status Status, reviewer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appeals[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != StatusPending {
		return ErrAlreadyResolved
	}
	now := time.Now().UTC()
	a.Status = status
	a.Reviewer = reviewer
	a.ResolvedAt = &now
	return nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string) ([]*Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*Appeal
	for _, a := range s.appeals {
		if a.AccountID == accountID {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]*Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*Appeal
	for _, a := range s.appeals {
		if a.Status == StatusPending {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
