// Package appeal implements the review workflow for frozen accounts.
//
// An account owner submits at most one pending appeal at a time. A reviewer
// resolves it to approved or rejected; resolution is final. Approving an
// appeal is the only path that thaws a frozen account back to active.
package appeal

import (
	"context"
	"errors"
	"time"
)

// Status of an appeal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

var (
	ErrNotFound        = errors.New("appeal not found")
	ErrAlreadyPending  = errors.New("account already has a pending appeal")
	ErrAlreadyResolved = errors.New("appeal already resolved")
)

// Appeal is one review request.
type Appeal struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"accountId"`
	Justification string     `json:"justification"`
	Status        Status     `json:"status"`
	Reviewer      string     `json:"reviewer,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

// Store persists appeals.
type Store interface {
	// Create fails with ErrAlreadyPending when the account has an open appeal.
	Create(ctx context.Context, a *Appeal) error
	Get(ctx context.Context, id string) (*Appeal, error)
	// Resolve moves a pending appeal to its final status. Resolving a
	// non-pending appeal fails with ErrAlreadyResolved.
	Resolve(ctx context.Context, id string, status Status, reviewer string) error
	// ListByAccount returns an account's appeals, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]*Appeal, error)
	// ListPending returns open appeals, oldest first, the review queue order.
	ListPending(ctx context.Context, limit int) ([]*Appeal, error)
}
