package engine

import (
	"context"

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/appeal"
	"github.com/rfontaine/sentra/internal/audit"
	"github.com/rfontaine/sentra/internal/ledger"
	"github.com/rfontaine/sentra/internal/risk"
	"github.com/rfontaine/sentra/internal/transaction"
)

// GetAccount returns an account with its live ledger balance.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if bal, err := e.ledger.GetBalance(ctx, accountID); err == nil {
		acct.Balance = bal.Available
	}
	return acct, nil
}

// ListAccounts pages through the account directory.
func (e *Engine) ListAccounts(ctx context.Context, limit, offset int) ([]*account.Account, error) {
	return e.accounts.List(ctx, limit, offset)
}

// ListAccountsByState filters the directory by lifecycle state.
func (e *Engine) ListAccountsByState(ctx context.Context, state account.State, limit int) ([]*account.Account, error) {
	return e.accounts.ListByState(ctx, state, limit)
}

// ListHighRiskAccounts returns accounts whose cached risk score is at or
// above threshold, riskiest first.
func (e *Engine) ListHighRiskAccounts(ctx context.Context, threshold float64, limit int) ([]*account.Account, error) {
	return e.accounts.ListHighRisk(ctx, threshold, limit)
}

// GetBalance returns an account's ledger position.
func (e *Engine) GetBalance(ctx context.Context, accountID string) (*ledger.Balance, error) {
	return e.ledger.GetBalance(ctx, accountID)
}

// GetLedgerHistory returns an account's ledger entries, newest first.
func (e *Engine) GetLedgerHistory(ctx context.Context, accountID string, limit int) ([]*ledger.Entry, error) {
	return e.ledger.GetHistory(ctx, accountID, limit)
}

// GetTransaction returns one transaction.
func (e *Engine) GetTransaction(ctx context.Context, txID string) (*transaction.Transaction, error) {
	return e.transactions.Get(ctx, txID)
}

// ListAccountTransactions returns an account's transactions, newest first.
func (e *Engine) ListAccountTransactions(ctx context.Context, accountID string, limit int) ([]*transaction.Transaction, error) {
	return e.transactions.ListByAccount(ctx, accountID, limit)
}

// ListFlaggedTransactions returns the manual review queue.
func (e *Engine) ListFlaggedTransactions(ctx context.Context, limit int) ([]*transaction.Transaction, error) {
	return e.transactions.ListByStatus(ctx, transaction.StatusFlagged, limit)
}

// ExplainTransaction returns the full decision record for a transaction:
// the transaction itself plus the assessment with findings and evidence.
func (e *Engine) ExplainTransaction(ctx context.Context, txID string) (*EvaluationResult, error) {
	tx, err := e.transactions.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	asmt, err := e.assessments.GetByTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	return &EvaluationResult{Transaction: tx, Assessment: asmt}, nil
}

// ListAssessments returns an account's assessments, newest first.
func (e *Engine) ListAssessments(ctx context.Context, accountID string, limit int) ([]*risk.RiskAssessment, error) {
	return e.assessments.ListByAccount(ctx, accountID, limit)
}

// GetAuditLog returns an account's full audit trail, oldest first.
func (e *Engine) GetAuditLog(ctx context.Context, accountID string) ([]*audit.Entry, error) {
	return e.auditLog(ctx, accountID)
}

func (e *Engine) auditLog(ctx context.Context, accountID string) ([]*audit.Entry, error) {
	entries, err := e.auditStore.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, audit.ErrNotFound
	}
	return entries, nil
}

// StateVerification compares the cached account state with the state
// replayed from the audit log.
type StateVerification struct {
	AccountID string        `json:"accountId"`
	Cached    account.State `json:"cached"`
	Replayed  account.State `json:"replayed"`
	Match     bool          `json:"match"`
}

// VerifyAccountState replays the audit log and checks it against the
// accounts table. A mismatch means the cache is wrong; the log wins.
func (e *Engine) VerifyAccountState(ctx context.Context, accountID string) (*StateVerification, error) {
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	entries, err := e.auditLog(ctx, accountID)
	if err != nil {
		return nil, err
	}
	replayed, err := audit.ReplayState(entries)
	if err != nil {
		return nil, err
	}
	return &StateVerification{
		AccountID: accountID,
		Cached:    acct.State,
		Replayed:  replayed,
		Match:     acct.State == replayed,
	}, nil
}

// GetAppeal returns one appeal.
func (e *Engine) GetAppeal(ctx context.Context, appealID string) (*appeal.Appeal, error) {
	return e.appeals.Get(ctx, appealID)
}

// ListAccountAppeals returns an account's appeals, newest first.
func (e *Engine) ListAccountAppeals(ctx context.Context, accountID string) ([]*appeal.Appeal, error) {
	return e.appeals.ListByAccount(ctx, accountID)
}

// ListPendingAppeals returns the appeal review queue, oldest first.
func (e *Engine) ListPendingAppeals(ctx context.Context, limit int) ([]*appeal.Appeal, error) {
	return e.appeals.ListPending(ctx, limit)
}

// ReconcileLedger checks an account's stored balance against its replayed
// entry history.
func (e *Engine) ReconcileLedger(ctx context.Context, accountID string) (bool, *ledger.Balance, *ledger.Balance, error) {
	return e.ledger.Reconcile(ctx, accountID)
}

// RiskReport is the explainability payload for one account: the latest
// assessment plus every transaction that drew findings, with readable reasons.
type RiskReport struct {
	Account            *account.Account        `json:"account"`
	LatestAssessment   *risk.RiskAssessment    `json:"latestAssessment,omitempty"`
	SuspiciousActivity []SuspiciousTransaction `json:"suspiciousActivity"`
}

// SuspiciousTransaction pairs a non-approved transaction with the detector
// descriptions that condemned it.
type SuspiciousTransaction struct {
	Transaction *transaction.Transaction `json:"transaction"`
	Reasons     []string                 `json:"reasons"`
}

// AccountRiskReport builds the report for an account. Transactions without a
// stored assessment (pre-dating screening, or swept) still appear, with no
// reasons attached.
func (e *Engine) AccountRiskReport(ctx context.Context, accountID string) (*RiskReport, error) {
	acct, err := e.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report := &RiskReport{
		Account:            acct,
		SuspiciousActivity: []SuspiciousTransaction{},
	}

	if asmts, err := e.assessments.ListByAccount(ctx, accountID, 1); err == nil && len(asmts) > 0 {
		report.LatestAssessment = asmts[0]
	}

	txs, err := e.transactions.ListByAccount(ctx, accountID, 200)
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if tx.Status != transaction.StatusFlagged && tx.Status != transaction.StatusBlocked {
			continue
		}
		st := SuspiciousTransaction{Transaction: tx}
		if asmt, err := e.assessments.GetByTransaction(ctx, tx.ID); err == nil {
			for _, f := range asmt.ContributingFactors {
				st.Reasons = append(st.Reasons, f.Description)
			}
		}
		report.SuspiciousActivity = append(report.SuspiciousActivity, st)
	}
	return report, nil
}
