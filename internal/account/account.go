// Package account owns the account lifecycle state machine.
//
// States: ACTIVE → FLAGGED → FROZEN → (via appeal) ACTIVE, with BLOCKED as
// the terminal state reachable from any non-terminal state. The state field
// on an account is a cached projection; the audit log is the source of truth
// and replaying it must reproduce the current state exactly.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrInvalidTransition = errors.New("invalid account state transition")
)

// State is the lifecycle state of an account.
type State string

const (
	StateActive  State = "ACTIVE"
	StateFlagged State = "FLAGGED"
	StateFrozen  State = "FROZEN"
	StateBlocked State = "BLOCKED"
)

// Account represents a monitored account.
type Account struct {
	ID        string    `json:"id"`
	OwnerName string    `json:"ownerName"`
	Balance   string    `json:"balance"`
	State     State     `json:"state"`
	RiskScore float64   `json:"riskScore"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsRestricted reports whether the account may not initiate transactions.
func (a *Account) IsRestricted() bool {
	return a.State == StateFrozen || a.State == StateBlocked
}

// transitions is the full set of permitted state changes. BLOCKED is
// terminal: no row has it as a source.
var transitions = map[State][]State{
	StateActive:  {StateFlagged, StateFrozen, StateBlocked},
	StateFlagged: {StateFrozen, StateBlocked},
	StateFrozen:  {StateActive, StateBlocked},
}

// CanTransition reports whether from → to is a permitted state change.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition if from → to is not in the
// transition table. Callers must treat this as a policy error, never ignore it.
func ValidateTransition(from, to State) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, acct *Account) error
	Get(ctx context.Context, id string) (*Account, error)

	// UpdateState moves the cached state projection with compare-and-set
	// semantics: the write applies only if the stored state equals from.
	UpdateState(ctx context.Context, id string, from, to State) error

	// UpdateRiskScore caches the most recent assessment probability.
	UpdateRiskScore(ctx context.Context, id string, score float64) error

	// List returns accounts ordered by creation time descending.
	List(ctx context.Context, limit, offset int) ([]*Account, error)

	// ListByState returns accounts currently in the given state.
	ListByState(ctx context.Context, state State, limit int) ([]*Account, error)

	// ListHighRisk returns accounts whose cached risk score meets threshold.
	ListHighRisk(ctx context.Context, threshold float64, limit int) ([]*Account, error)
}
