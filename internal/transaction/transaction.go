// Package transaction defines the recorded transfer model and its stores.
//
// A transaction is immutable once recorded except for its status, which is
// set exactly once by the screening engine (PENDING → APPROVED | FLAGGED |
// BLOCKED). Stores index transactions by (source account, timestamp) so the
// typology detectors can query recent-history windows cheaply.
package transaction

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("transaction not found")
	ErrStatusAlreadySet = errors.New("transaction status already set")
)

// Status is the lifecycle status of a screened transaction.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusFlagged  Status = "FLAGGED"
	StatusBlocked  Status = "BLOCKED"
)

// Transaction represents a single transfer between two accounts.
type Transaction struct {
	ID              string    `json:"id"`
	SourceAccountID string    `json:"sourceAccountId"`
	TargetAccountID string    `json:"targetAccountId"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Status          Status    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}

// Store persists transactions.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)

	// ListByAccount returns transactions where the account is source or
	// target, newest first, up to limit.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Transaction, error)

	// ListBySourceSince returns the account's outgoing transactions with
	// Timestamp >= since, oldest first. This is the detector history window.
	ListBySourceSince(ctx context.Context, accountID string, since time.Time) ([]*Transaction, error)

	// ListSince returns all transactions with Timestamp >= since, oldest
	// first, up to limit. Used to build the transfer graph for cycle
	// detection.
	ListSince(ctx context.Context, since time.Time, limit int) ([]*Transaction, error)

	// ListByStatus returns transactions with the given status, newest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Transaction, error)

	// UpdateStatus sets the status of a transaction with compare-and-set
	// semantics: the update applies only if the current status equals from,
	// otherwise ErrStatusAlreadySet is returned.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}
