package risk

import (
	"context"
	"sync"

	"github.com/rfontaine/sentra/internal/detector"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*RiskAssessment
	byTx      map[string]*RiskAssessment
	byAccount map[string][]*RiskAssessment // append order, oldest first
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*RiskAssessment),
		byTx:      make(map[string]*RiskAssessment),
		byAccount: make(map[string][]*RiskAssessment),
	}
}

func (s *MemoryStore) Record(ctx context.Context, a *RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.ContributingFactors = append([]detector.Finding(nil), a.ContributingFactors...)

	s.byID[cp.ID] = &cp
	if cp.TransactionID != "" {
		s.byTx[cp.TransactionID] = &cp
	}
	s.byAccount[cp.AccountID] = append(s.byAccount[cp.AccountID], &cp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetByTransaction(ctx context.Context, txID string) (*RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byTx[txID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byAccount[accountID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	// Most recent first.
	result := make([]*RiskAssessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		cp := *all[i]
		result = append(result, &cp)
	}
	return result, nil
}
