package engine

import (
	"context"
	"time"

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/appeal"
	"github.com/rfontaine/sentra/internal/audit"
	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/metrics"
	"github.com/rfontaine/sentra/internal/realtime"
	"github.com/rfontaine/sentra/internal/transaction"
	"github.com/rfontaine/sentra/internal/validation"
)

// transition moves an account to the target state under its lock, with the
// audit entry written first. Used by the manual lifecycle operations.
func (e *Engine) transition(ctx context.Context, accountID string, to account.State, d audit.StateChangeDetails) (*account.Account, error) {
	unlock, err := e.locks.LockContext(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := account.ValidateTransition(acct.State, to); err != nil {
		return nil, err
	}

	d.From = string(acct.State)
	d.To = string(to)
	if _, err := e.auditor.StateChanged(ctx, acct.ID, d); err != nil {
		return nil, err
	}
	if err := e.accounts.UpdateState(ctx, acct.ID, acct.State, to); err != nil {
		return nil, err
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(acct.State), string(to)).Inc()
	e.logger.Info("account state changed", "account_id", acct.ID, "from", acct.State, "to", to, "reason", d.Reason)
	acct.State = to
	return acct, nil
}

// FreezeAccount freezes an account by compliance decision.
func (e *Engine) FreezeAccount(ctx context.Context, accountID, reason string) (*account.Account, error) {
	acct, err := e.transition(ctx, accountID, account.StateFrozen, audit.StateChangeDetails{Reason: reason})
	if err != nil {
		return nil, err
	}
	e.publish(realtime.EventAccountFrozen, map[string]interface{}{
		"accountId": acct.ID,
		"reason":    reason,
	})
	return acct, nil
}

// BlockAccount permanently blocks an account. There is no way back.
func (e *Engine) BlockAccount(ctx context.Context, accountID, reason string) (*account.Account, error) {
	acct, err := e.transition(ctx, accountID, account.StateBlocked, audit.StateChangeDetails{Reason: reason})
	if err != nil {
		return nil, err
	}
	e.publish(realtime.EventAccountBlocked, map[string]interface{}{
		"accountId": acct.ID,
		"reason":    reason,
	})
	return acct, nil
}

// SubmitAppeal opens an appeal for a frozen account. One pending appeal per
// account; a blocked account has nothing to appeal to.
func (e *Engine) SubmitAppeal(ctx context.Context, accountID, justification string) (*appeal.Appeal, error) {
	if !validation.IsValidAccountID(accountID) {
		return nil, ErrInvalidInput
	}
	justification = validation.SanitizeString(justification, validation.MaxJustificationLength)
	if justification == "" {
		return nil, ErrInvalidInput
	}

	unlock, err := e.locks.LockContext(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.State != account.StateFrozen {
		return nil, ErrNotAppealable
	}

	apl := &appeal.Appeal{
		ID:            idgen.WithPrefix("apl_"),
		AccountID:     accountID,
		Justification: justification,
		Status:        appeal.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.appeals.Create(ctx, apl); err != nil {
		return nil, err
	}
	if _, err := e.auditor.AppealSubmitted(ctx, accountID, apl.ID); err != nil {
		return nil, err
	}

	e.publish(realtime.EventAppealSubmitted, map[string]interface{}{
		"accountId": accountID,
		"appealId":  apl.ID,
	})
	e.logger.Info("appeal submitted", "account_id", accountID, "appeal_id", apl.ID)
	return apl, nil
}

// ApproveAppeal approves a pending appeal and thaws the account back to
// active, the only reactivation path in the system.
func (e *Engine) ApproveAppeal(ctx context.Context, appealID, reviewer string) (*appeal.Appeal, error) {
	return e.resolveAppeal(ctx, appealID, reviewer, appeal.StatusApproved)
}

// RejectAppeal rejects a pending appeal; the account stays frozen.
func (e *Engine) RejectAppeal(ctx context.Context, appealID, reviewer string) (*appeal.Appeal, error) {
	return e.resolveAppeal(ctx, appealID, reviewer, appeal.StatusRejected)
}

func (e *Engine) resolveAppeal(ctx context.Context, appealID, reviewer string, status appeal.Status) (*appeal.Appeal, error) {
	apl, err := e.appeals.Get(ctx, appealID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locks.LockContext(ctx, apl.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := e.appeals.Resolve(ctx, appealID, status, reviewer); err != nil {
		return nil, err
	}
	if _, err := e.auditor.AppealResolved(ctx, apl.AccountID, appealID, string(status), reviewer); err != nil {
		return nil, err
	}

	if status == appeal.StatusApproved {
		acct, err := e.accounts.Get(ctx, apl.AccountID)
		if err != nil {
			return nil, err
		}
		// The account may have been blocked while the appeal sat in the
		// queue; a terminal state wins over the approval.
		if acct.State == account.StateFrozen {
			d := audit.StateChangeDetails{
				From:   string(account.StateFrozen),
				To:     string(account.StateActive),
				Reason: "appeal approved",
			}
			if _, err := e.auditor.StateChanged(ctx, acct.ID, d); err != nil {
				return nil, err
			}
			if err := e.accounts.UpdateState(ctx, acct.ID, account.StateFrozen, account.StateActive); err != nil {
				return nil, err
			}
			metrics.StateTransitionsTotal.WithLabelValues(string(account.StateFrozen), string(account.StateActive)).Inc()
		}
	}

	metrics.AppealsTotal.WithLabelValues(string(status)).Inc()
	e.publish(realtime.EventAppealResolved, map[string]interface{}{
		"accountId": apl.AccountID,
		"appealId":  appealID,
		"outcome":   string(status),
	})
	e.logger.Info("appeal resolved", "appeal_id", appealID, "outcome", status, "reviewer", reviewer)

	return e.appeals.Get(ctx, appealID)
}

// ClearFlaggedTransaction marks a flagged transaction approved after manual
// review. Bookkeeping only: the reserved funds were already returned when
// the transaction was flagged, so no money moves here.
func (e *Engine) ClearFlaggedTransaction(ctx context.Context, txID string) (*transaction.Transaction, error) {
	if err := e.transactions.UpdateStatus(ctx, txID, transaction.StatusFlagged, transaction.StatusApproved); err != nil {
		return nil, err
	}
	e.logger.Info("flagged transaction cleared", "transaction_id", txID)
	return e.transactions.Get(ctx, txID)
}
