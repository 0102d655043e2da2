// Package ledger tracks account balances with two-phase movements.
//
// Flow for a screened transfer:
//  1. Reserve moves the amount from available to held before screening
//  2. Commit settles the hold and credits the target account
//  3. Rollback releases the hold back to available when screening flags
//
// Funds in a hold are spendable by no one, so a transaction that is still
// being screened can never be double-spent by a concurrent transfer.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/rfontaine/sentra/internal/money"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found in ledger")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrHoldNotFound      = errors.New("hold not found")
)

// Entry types.
const (
	EntryDeposit  = "deposit"  // opening or top-up credit
	EntryHold     = "hold"     // available to held
	EntryCommit   = "commit"   // held settled out
	EntryRelease  = "release"  // held back to available
	EntryTransfer = "transfer" // credit from a committed transfer
)

// Entry is one immutable ledger movement.
type Entry struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Reference string    `json:"reference,omitempty"` // transaction ID
	CreatedAt time.Time `json:"createdAt"`
}

// Balance is an account's current position.
type Balance struct {
	AccountID string    `json:"accountId"`
	Available string    `json:"available"`
	Held      string    `json:"held"` // reserved for in-flight transfers
	TotalIn   string    `json:"totalIn"`
	TotalOut  string    `json:"totalOut"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Hold is an in-flight reservation keyed by transaction ID.
type Hold struct {
	TransactionID string    `json:"transactionId"`
	AccountID     string    `json:"accountId"`
	Amount        string    `json:"amount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store persists balances, holds, and the entry history.
type Store interface {
	GetBalance(ctx context.Context, accountID string) (*Balance, error)
	Credit(ctx context.Context, accountID, amount, reference, entryType string) error
	// Hold atomically moves amount from available to held, failing with
	// ErrInsufficientFunds when available is short.
	Hold(ctx context.Context, accountID, txID, amount string) error
	// CommitHold settles the hold out of the source and credits the target.
	CommitHold(ctx context.Context, txID, targetAccountID string) error
	// ReleaseHold returns the held amount to available.
	ReleaseHold(ctx context.Context, txID string) error
	// GetHistory returns entries newest first. A non-positive limit
	// returns the full history.
	GetHistory(ctx context.Context, accountID string, limit int) ([]*Entry, error)
}

// Ledger manages account balances.
type Ledger struct {
	store Store
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Open credits an account's opening balance. A zero opening balance still
// creates the position so later lookups succeed.
func (l *Ledger) Open(ctx context.Context, accountID, amount string) error {
	cents, ok := money.Parse(amount)
	if !ok || cents.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.store.Credit(ctx, accountID, money.Format(cents), "", EntryDeposit)
}

// Reserve places a hold for an outgoing transfer.
func (l *Ledger) Reserve(ctx context.Context, accountID, txID, amount string) error {
	cents, ok := money.Parse(amount)
	if !ok || cents.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.store.Hold(ctx, accountID, txID, money.Format(cents))
}

// Commit settles a hold and credits the target account.
func (l *Ledger) Commit(ctx context.Context, txID, targetAccountID string) error {
	return l.store.CommitHold(ctx, txID, targetAccountID)
}

// Rollback releases a hold back to the source account.
func (l *Ledger) Rollback(ctx context.Context, txID string) error {
	return l.store.ReleaseHold(ctx, txID)
}

// GetBalance returns an account's current position.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	return l.store.GetBalance(ctx, accountID)
}

// GetHistory returns an account's ledger entries, newest first.
func (l *Ledger) GetHistory(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.GetHistory(ctx, accountID, limit)
}

// CanSpend reports whether an account's available balance covers amount.
func (l *Ledger) CanSpend(ctx context.Context, accountID, amount string) (bool, error) {
	cents, ok := money.Parse(amount)
	if !ok {
		return false, ErrInvalidAmount
	}
	bal, err := l.store.GetBalance(ctx, accountID)
	if err != nil {
		return false, err
	}
	available, _ := money.Parse(bal.Available)
	return available.Cmp(cents) >= 0, nil
}

// RebuildBalance replays entries, oldest first, into a position. Used to
// check the stored balance against the entry history.
func RebuildBalance(accountID string, entries []*Entry) *Balance {
	available := big.NewInt(0)
	held := big.NewInt(0)
	totalIn := big.NewInt(0)
	totalOut := big.NewInt(0)

	for _, e := range entries {
		amt, ok := money.Parse(e.Amount)
		if !ok {
			continue
		}
		switch e.Type {
		case EntryDeposit, EntryTransfer:
			available.Add(available, amt)
			totalIn.Add(totalIn, amt)
		case EntryHold:
			available.Sub(available, amt)
			held.Add(held, amt)
		case EntryCommit:
			held.Sub(held, amt)
			totalOut.Add(totalOut, amt)
		case EntryRelease:
			held.Sub(held, amt)
			available.Add(available, amt)
		}
	}

	return &Balance{
		AccountID: accountID,
		Available: money.Format(available),
		Held:      money.Format(held),
		TotalIn:   money.Format(totalIn),
		TotalOut:  money.Format(totalOut),
	}
}

// Reconcile replays an account's full history and compares it against the
// stored balance.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) (match bool, replayed, actual *Balance, err error) {
	entries, err := l.store.GetHistory(ctx, accountID, 0)
	if err != nil {
		return false, nil, nil, err
	}
	// History is newest first; replay wants oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	replayed = RebuildBalance(accountID, entries)

	actual, err = l.store.GetBalance(ctx, accountID)
	if err != nil {
		return false, nil, nil, err
	}
	match = replayed.Available == actual.Available &&
		replayed.Held == actual.Held &&
		replayed.TotalIn == actual.TotalIn &&
		replayed.TotalOut == actual.TotalOut
	return match, replayed, actual, nil
}
