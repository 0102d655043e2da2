package engine

import (
	"context"
	"time"

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/audit"
	"github.com/rfontaine/sentra/internal/detector"
	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/metrics"
	"github.com/rfontaine/sentra/internal/money"
	"github.com/rfontaine/sentra/internal/realtime"
	"github.com/rfontaine/sentra/internal/risk"
	"github.com/rfontaine/sentra/internal/scoring"
	"github.com/rfontaine/sentra/internal/traces"
	"github.com/rfontaine/sentra/internal/transaction"
	"github.com/rfontaine/sentra/internal/validation"
)

// EvaluateRequest is one transfer submitted for screening.
type EvaluateRequest struct {
	SourceAccountID string `json:"sourceAccountId"`
	TargetAccountID string `json:"targetAccountId"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

// EvaluationResult pairs the recorded transaction with its assessment.
type EvaluationResult struct {
	Transaction *transaction.Transaction `json:"transaction"`
	Assessment  *risk.RiskAssessment     `json:"assessment"`
}

// EvaluateTransaction screens one transfer end to end: reserve funds, run
// the detectors and the model, persist the verdict, then settle or unwind
// the reservation. A rejected transfer from a restricted account is never
// recorded; everything that passes the gate is, whatever its final status.
func (e *Engine) EvaluateTransaction(ctx context.Context, req EvaluateRequest) (*EvaluationResult, error) {
	if !validation.IsValidAccountID(req.SourceAccountID) || !validation.IsValidAccountID(req.TargetAccountID) {
		return nil, ErrInvalidInput
	}
	if req.SourceAccountID == req.TargetAccountID {
		return nil, ErrSameAccount
	}
	if !validation.IsValidAmount(req.Amount) || !money.IsPositive(req.Amount) {
		return nil, ErrInvalidInput
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if !validation.IsValidCurrency(req.Currency) {
		return nil, ErrInvalidInput
	}

	ctx, span := traces.StartSpan(ctx, "engine.EvaluateTransaction",
		traces.AccountID(req.SourceAccountID), traces.Amount(req.Amount))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	unlock, err := e.locks.LockContext(ctx, req.SourceAccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	src, err := e.accounts.Get(ctx, req.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if src.IsRestricted() {
		metrics.TransactionsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrAccountRestricted
	}
	if _, err := e.accounts.Get(ctx, req.TargetAccountID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx := &transaction.Transaction{
		ID:              idgen.WithPrefix("txn_"),
		SourceAccountID: req.SourceAccountID,
		TargetAccountID: req.TargetAccountID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          transaction.StatusPending,
		Timestamp:       now,
	}

	if err := e.ledger.Reserve(ctx, src.ID, tx.ID, tx.Amount); err != nil {
		metrics.TransactionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	asmt, err := e.assess(ctx, src, tx, now)
	if err != nil {
		_ = e.ledger.Rollback(ctx, tx.ID)
		return nil, err
	}

	tx.Status = statusFor(asmt)

	if _, err := e.auditor.TransactionEvaluated(ctx, src.ID, audit.EvaluationDetails{
		TransactionID: tx.ID,
		AssessmentID:  asmt.ID,
		Level:         string(asmt.Level),
		Probability:   asmt.Probability,
		Status:        string(tx.Status),
	}); err != nil {
		_ = e.ledger.Rollback(ctx, tx.ID)
		return nil, err
	}
	if err := e.transactions.Create(ctx, tx); err != nil {
		_ = e.ledger.Rollback(ctx, tx.ID)
		return nil, err
	}

	if tx.Status == transaction.StatusApproved {
		if err := e.ledger.Commit(ctx, tx.ID, tx.TargetAccountID); err != nil {
			return nil, err
		}
	} else {
		if err := e.ledger.Rollback(ctx, tx.ID); err != nil {
			return nil, err
		}
		e.applyRiskTransition(ctx, src, asmt)
		e.publishVerdict(tx, asmt)
	}

	if err := e.accounts.UpdateRiskScore(ctx, src.ID, asmt.Probability); err != nil {
		e.logger.Warn("failed to update cached risk score", "account_id", src.ID, "error", err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(tx.Status)).Inc()
	e.logger.Info("transaction evaluated",
		"transaction_id", tx.ID,
		"account_id", src.ID,
		"status", tx.Status,
		"level", asmt.Level,
		"probability", asmt.Probability)

	return &EvaluationResult{Transaction: tx, Assessment: asmt}, nil
}

// AssessAccount screens an account's recent history without a live
// transaction, the sweep used by periodic reviews. A high verdict moves the
// account through the same transition policy as a live evaluation.
func (e *Engine) AssessAccount(ctx context.Context, accountID string) (*risk.RiskAssessment, error) {
	if !validation.IsValidAccountID(accountID) {
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

	now := time.Now().UTC()
	asmt, err := e.assess(ctx, acct, nil, now)
	if err != nil {
		return nil, err
	}

	if _, err := e.auditor.TransactionEvaluated(ctx, acct.ID, audit.EvaluationDetails{
		AssessmentID: asmt.ID,
		Level:        string(asmt.Level),
		Probability:  asmt.Probability,
	}); err != nil {
		return nil, err
	}

	if asmt.Level == risk.LevelHigh && !acct.IsRestricted() {
		e.applyRiskTransition(ctx, acct, asmt)
	}
	if err := e.accounts.UpdateRiskScore(ctx, acct.ID, asmt.Probability); err != nil {
		e.logger.Warn("failed to update cached risk score", "account_id", acct.ID, "error", err)
	}
	return asmt, nil
}

// assess runs detectors and the model and persists the assessment. tx is
// nil for account-level sweeps.
func (e *Engine) assess(ctx context.Context, acct *account.Account, tx *transaction.Transaction, now time.Time) (*risk.RiskAssessment, error) {
	ctx, span := traces.StartSpan(ctx, "engine.assess", traces.AccountID(acct.ID))
	defer span.End()

	outgoing, err := e.transactions.ListBySourceSince(ctx, acct.ID, now.Add(-e.historyWindow()))
	if err != nil {
		return nil, err
	}
	recent, err := e.transactions.ListSince(ctx, now.Add(-e.circularWindow), 10000)
	if err != nil {
		return nil, err
	}

	findings := e.runner.Run(ctx, &detector.Input{
		AccountID: acct.ID,
		Tx:        tx,
		Outgoing:  outgoing,
		Recent:    recent,
		Now:       now,
	})

	probability, available := e.score(ctx, acct, tx, outgoing, now)

	txID := ""
	if tx != nil {
		txID = tx.ID
	}
	asmt := e.aggregator.Aggregate(acct.ID, txID, findings, probability, available)
	if err := e.assessments.Record(ctx, asmt); err != nil {
		return nil, err
	}
	return asmt, nil
}

// score calls the model under its deadline. Any failure degrades to
// rule-only rather than failing the evaluation.
func (e *Engine) score(ctx context.Context, acct *account.Account, tx *transaction.Transaction, outgoing []*transaction.Transaction, now time.Time) (float64, bool) {
	if e.scorer == nil {
		return 0, false
	}

	ctx, span := traces.StartSpan(ctx, "engine.score", traces.AccountID(acct.ID))
	defer span.End()

	var amount float64
	if tx != nil {
		amount, _ = money.ParseFloat(tx.Amount)
	}
	dayAgo := now.Add(-24 * time.Hour)
	count24h := 0
	total24h := 0.0
	for _, t := range outgoing {
		if t.Timestamp.Before(dayAgo) {
			continue
		}
		count24h++
		if v, ok := money.ParseFloat(t.Amount); ok {
			total24h += v
		}
	}

	f := scoring.Features{
		AccountID:        acct.ID,
		Amount:           amount,
		HourOfDay:        now.Hour(),
		OutgoingCount24h: count24h,
		OutgoingTotal24h: total24h,
		AccountRiskScore: acct.RiskScore,
	}
	if tx != nil {
		f.Currency = tx.Currency
	}

	p, err := e.scorer.Score(ctx, f)
	if err != nil {
		metrics.ScoringFallbacksTotal.Inc()
		e.logger.Warn("scoring unavailable, proceeding rule-only", "account_id", acct.ID, "error", err)
		return 0, false
	}
	return p, true
}

// statusFor maps an assessment to the transaction's final status. A critical
// typology blocks outright; any other high verdict flags for review.
func statusFor(asmt *risk.RiskAssessment) transaction.Status {
	if asmt.Level != risk.LevelHigh {
		return transaction.StatusApproved
	}
	for _, f := range asmt.ContributingFactors {
		if f.Severity == detector.SeverityCritical {
			return transaction.StatusBlocked
		}
	}
	return transaction.StatusFlagged
}

// applyRiskTransition moves the account per policy after a high verdict:
// flag it, then immediately freeze when auto-freeze is on. Each step writes
// its audit entry before the state cache so the log carries the full path.
func (e *Engine) applyRiskTransition(ctx context.Context, acct *account.Account, asmt *risk.RiskAssessment) {
	if asmt.Level != risk.LevelHigh {
		return
	}

	e.step(ctx, acct, account.StateFlagged, "high risk assessment", asmt.ID)
	if e.autoFreeze {
		if e.step(ctx, acct, account.StateFrozen, "auto freeze on high risk assessment", asmt.ID) {
			e.publish(realtime.EventAccountFrozen, map[string]interface{}{
				"accountId":    acct.ID,
				"assessmentId": asmt.ID,
				"probability":  asmt.Probability,
			})
		}
	}
}

// step performs one audited transition, skipping silently when the state
// machine does not allow it (the account may already be further along).
func (e *Engine) step(ctx context.Context, acct *account.Account, target account.State, reason, assessmentID string) bool {
	if acct.State == target || !account.CanTransition(acct.State, target) {
		return false
	}

	if _, err := e.auditor.StateChanged(ctx, acct.ID, audit.StateChangeDetails{
		From:         string(acct.State),
		To:           string(target),
		Reason:       reason,
		AssessmentID: assessmentID,
	}); err != nil {
		e.logger.Error("failed to audit state change, leaving account state untouched",
			"account_id", acct.ID, "error", err)
		return false
	}
	if err := e.accounts.UpdateState(ctx, acct.ID, acct.State, target); err != nil {
		e.logger.Error("failed to update account state", "account_id", acct.ID, "error", err)
		return false
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(acct.State), string(target)).Inc()
	e.logger.Info("account state changed", "account_id", acct.ID, "from", acct.State, "to", target, "reason", reason)
	acct.State = target
	return true
}

func (e *Engine) publishVerdict(tx *transaction.Transaction, asmt *risk.RiskAssessment) {
	eventType := realtime.EventTransactionFlagged
	if tx.Status == transaction.StatusBlocked {
		eventType = realtime.EventTransactionBlocked
	}
	e.publish(eventType, map[string]interface{}{
		"transactionId":   tx.ID,
		"sourceAccountId": tx.SourceAccountID,
		"targetAccountId": tx.TargetAccountID,
		"amount":          tx.Amount,
		"probability":     asmt.Probability,
		"primaryFlag":     string(asmt.PrimaryFlag),
	})
}
