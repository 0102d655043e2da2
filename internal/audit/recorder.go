package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rfontaine/sentra/internal/idgen"
)

// Recorder writes typed entries to the log. Every method fails loudly: a
// caller that cannot write its audit entry must abort the action, because
// an unlogged state change would make the log lie.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) append(ctx context.Context, accountID string, event EventType, details any) (*Entry, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit details: %w", err)
	}
	e := &Entry{
		ID:        idgen.WithPrefix("audit_"),
		AccountID: accountID,
		Event:     event,
		Details:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}
	return e, nil
}

// AccountCreated logs the opening of an account.
func (r *Recorder) AccountCreated(ctx context.Context, accountID, ownerName, openingBalance string) (*Entry, error) {
	return r.append(ctx, accountID, EventAccountCreated, AccountCreatedDetails{
		OwnerName:      ownerName,
		OpeningBalance: openingBalance,
	})
}

// TransactionEvaluated logs a screening outcome.
func (r *Recorder) TransactionEvaluated(ctx context.Context, accountID string, d EvaluationDetails) (*Entry, error) {
	return r.append(ctx, accountID, EventTransactionEvaluated, d)
}

// StateChanged logs a state machine transition. Called before the accounts
// table is updated so the log leads the cache, never trails it.
func (r *Recorder) StateChanged(ctx context.Context, accountID string, d StateChangeDetails) (*Entry, error) {
	return r.append(ctx, accountID, EventStateChanged, d)
}

// AppealSubmitted logs a new appeal.
func (r *Recorder) AppealSubmitted(ctx context.Context, accountID, appealID string) (*Entry, error) {
	return r.append(ctx, accountID, EventAppealSubmitted, AppealDetails{AppealID: appealID})
}

// AppealResolved logs an appeal decision.
func (r *Recorder) AppealResolved(ctx context.Context, accountID, appealID, outcome, reviewer string) (*Entry, error) {
	return r.append(ctx, accountID, EventAppealResolved, AppealDetails{
		AppealID: appealID,
		Outcome:  outcome,
		Reviewer: reviewer,
	})
}
