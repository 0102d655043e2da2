package ledger

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/money"
)

type memoryBalance struct {
	available *big.Int
	held      *big.Int
	totalIn   *big.Int
	totalOut  *big.Int
	updatedAt time.Time
}

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]*memoryBalance
	holds    map[string]*Hold // txID -> hold
	entries  map[string][]*Entry
}

// NewMemoryStore creates an in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*memoryBalance),
		holds:    make(map[string]*Hold),
		entries:  make(map[string][]*Entry),
	}
}

func (s *MemoryStore) balance(accountID string) *memoryBalance {
	b, ok := s.balances[accountID]
	if !ok {
		b = &memoryBalance{
			available: big.NewInt(0),
			held:      big.NewInt(0),
			totalIn:   big.NewInt(0),
			totalOut:  big.NewInt(0),
		}
		s.balances[accountID] = b
	}
	return b
}

func (s *MemoryStore) record(accountID, entryType, amount, reference string) {
	s.entries[accountID] = append(s.entries[accountID], &Entry{
		ID:        idgen.WithPrefix("led_"),
		AccountID: accountID,
		Type:      entryType,
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *MemoryStore) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &Balance{
		AccountID: accountID,
		Available: money.Format(b.available),
		Held:      money.Format(b.held),
		TotalIn:   money.Format(b.totalIn),
		TotalOut:  money.Format(b.totalOut),
		UpdatedAt: b.updatedAt,
	}, nil
}

func (s *MemoryStore) Credit(ctx context.Context, accountID, amount, reference, entryType string) error {
	cents, ok := money.Parse(amount)
	if !ok || cents.Sign() < 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balance(accountID)
	b.available.Add(b.available, cents)
	b.totalIn.Add(b.totalIn, cents)
	b.updatedAt = time.Now().UTC()
	s.record(accountID, entryType, money.Format(cents), reference)
	return nil
}

func (s *MemoryStore) Hold(ctx context.Context, accountID, txID, amount string) error {
	cents, ok := money.Parse(amount)
	if !ok || cents.Sign() <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.balances[accountID]
	if !exists {
		return ErrAccountNotFound
	}
	if b.available.Cmp(cents) < 0 {
		return ErrInsufficientFunds
	}
	b.available.Sub(b.available, cents)
	b.held.Add(b.held, cents)
	b.updatedAt = time.Now().UTC()

	s.holds[txID] = &Hold{
		TransactionID: txID,
		AccountID:     accountID,
		Amount:        money.Format(cents),
		CreatedAt:     time.Now().UTC(),
	}
	s.record(accountID, EntryHold, money.Format(cents), txID)
	return nil
}

func (s *MemoryStore) CommitHold(ctx context.Context, txID, targetAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[txID]
	if !ok {
		return ErrHoldNotFound
	}
	cents, _ := money.Parse(h.Amount)

	src := s.balance(h.AccountID)
	src.held.Sub(src.held, cents)
	src.totalOut.Add(src.totalOut, cents)
	src.updatedAt = time.Now().UTC()
	s.record(h.AccountID, EntryCommit, h.Amount, txID)

	dst := s.balance(targetAccountID)
	dst.available.Add(dst.available, cents)
	dst.totalIn.Add(dst.totalIn, cents)
	dst.updatedAt = time.Now().UTC()
	s.record(targetAccountID, EntryTransfer, h.Amount, txID)

	delete(s.holds, txID)
	return nil
}

func (s *MemoryStore) ReleaseHold(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[txID]
	if !ok {
		return ErrHoldNotFound
	}
	cents, _ := money.Parse(h.Amount)

	b := s.balance(h.AccountID)
	b.held.Sub(b.held, cents)
	b.available.Add(b.available, cents)
	b.updatedAt = time.Now().UTC()
	s.record(h.AccountID, EntryRelease, h.Amount, txID)

	delete(s.holds, txID)
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[accountID]
	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	result := make([]*Entry, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		cp := *all[i]
		result = append(result, &cp)
	}
	return result, nil
}
