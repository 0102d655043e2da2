// Package audit keeps the append-only compliance log.
//
// Every consequential action on an account produces one entry, written
// before the action's effects are applied. The log is the source of truth
// for account state: ReplayState reconstructs an account's current state
// from its entries alone, and a mismatch against the accounts table means
// the cached row is wrong, not the log. Entries are never updated or
// deleted.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// EventType classifies an audit entry.
type EventType string

const (
	EventAccountCreated       EventType = "ACCOUNT_CREATED"
	EventTransactionEvaluated EventType = "TRANSACTION_EVALUATED"
	EventStateChanged         EventType = "STATE_CHANGED"
	EventAppealSubmitted      EventType = "APPEAL_SUBMITTED"
	EventAppealResolved       EventType = "APPEAL_RESOLVED"
)

// Entry is one immutable audit record. Details holds the event-specific
// payload, marshaled at append time so both stores round-trip identically.
type Entry struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Event     EventType       `json:"event"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AccountCreatedDetails records the opening of an account.
type AccountCreatedDetails struct {
	OwnerName      string `json:"ownerName"`
	OpeningBalance string `json:"openingBalance"`
}

// EvaluationDetails records the outcome of screening one transaction.
type EvaluationDetails struct {
	TransactionID string  `json:"transactionId"`
	AssessmentID  string  `json:"assessmentId"`
	Level         string  `json:"level"`
	Probability   float64 `json:"probability"`
	Status        string  `json:"status"` // final transaction status
}

// StateChangeDetails records a state machine transition.
type StateChangeDetails struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Reason       string `json:"reason"`
	AssessmentID string `json:"assessmentId,omitempty"`
}

// AppealDetails records an appeal submission or resolution.
type AppealDetails struct {
	AppealID string `json:"appealId"`
	Outcome  string `json:"outcome,omitempty"` // empty on submission
	Reviewer string `json:"reviewer,omitempty"`
}

// ErrNotFound is returned when an account has no audit entries.
var ErrNotFound = errors.New("no audit entries found")

// Store persists audit entries. Append is the only write.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// ListByAccount returns every entry for the account, oldest first.
	ListByAccount(ctx context.Context, accountID string) ([]*Entry, error)
	// ListRecent returns the latest entries across all accounts, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}
