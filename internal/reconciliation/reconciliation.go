// Package reconciliation sweeps the whole book for drift: stored ledger
// balances are checked against their replayed entry history, and cached
// account states against the audit log. The sweep never repairs anything
// on its own; it reports, and the log remains the source of truth.
package reconciliation

import (
	"context"
	"log/slog"
	"time"

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/engine"
	"github.com/rfontaine/sentra/internal/ledger"
)

// Book is the slice of the engine the sweep needs.
type Book interface {
	ListAccounts(ctx context.Context, limit, offset int) ([]*account.Account, error)
	ReconcileLedger(ctx context.Context, accountID string) (bool, *ledger.Balance, *ledger.Balance, error)
	VerifyAccountState(ctx context.Context, accountID string) (*engine.StateVerification, error)
}

// Report summarizes one full sweep.
type Report struct {
	AccountsChecked  int       `json:"accountsChecked"`
	LedgerMismatches []string  `json:"ledgerMismatches"`
	StateMismatches  []string  `json:"stateMismatches"`
	Errors           int       `json:"errors"`
	Duration         string    `json:"duration"`
	RanAt            time.Time `json:"ranAt"`
}

// Clean reports whether the sweep found nothing wrong.
func (r *Report) Clean() bool {
	return len(r.LedgerMismatches) == 0 && len(r.StateMismatches) == 0 && r.Errors == 0
}

const pageSize = 100

// Runner walks every account and checks both consistency properties.
type Runner struct {
	book   Book
	logger *slog.Logger
}

// NewRunner creates a sweep runner over the given book.
func NewRunner(book Book, logger *slog.Logger) *Runner {
	return &Runner{book: book, logger: logger}
}

// RunAll sweeps the full account set. Per-account failures are counted and
// logged rather than aborting the sweep; only listing failures stop it.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		LedgerMismatches: []string{},
		StateMismatches:  []string{},
		RanAt:            start.UTC(),
	}

	for offset := 0; ; offset += pageSize {
		accounts, err := r.book.ListAccounts(ctx, pageSize, offset)
		if err != nil {
			reconcileErrors.Inc()
			return nil, err
		}
		if len(accounts) == 0 {
			break
		}

		for _, acct := range accounts {
			r.checkAccount(ctx, acct.ID, report)
		}

		if len(accounts) < pageSize {
			break
		}
	}

	elapsed := time.Since(start)
	report.Duration = elapsed.String()

	reconcileAccountsChecked.Set(float64(report.AccountsChecked))
	reconcileLedgerMismatches.Set(float64(len(report.LedgerMismatches)))
	reconcileStateMismatches.Set(float64(len(report.StateMismatches)))
	reconcileDuration.Observe(elapsed.Seconds())

	if report.Clean() {
		r.logger.Info("reconciliation sweep clean",
			"accounts", report.AccountsChecked,
			"duration", report.Duration,
		)
	} else {
		r.logger.Warn("reconciliation sweep found drift",
			"accounts", report.AccountsChecked,
			"ledger_mismatches", len(report.LedgerMismatches),
			"state_mismatches", len(report.StateMismatches),
			"errors", report.Errors,
		)
	}

	return report, nil
}

func (r *Runner) checkAccount(ctx context.Context, accountID string, report *Report) {
	report.AccountsChecked++

	match, replayed, stored, err := r.book.ReconcileLedger(ctx, accountID)
	if err != nil {
		report.Errors++
		reconcileErrors.Inc()
		r.logger.Warn("ledger reconciliation failed", "account_id", accountID, "error", err)
	} else if !match {
		report.LedgerMismatches = append(report.LedgerMismatches, accountID)
		r.logger.Warn("ledger balance drift",
			"account_id", accountID,
			"stored_available", stored.Available,
			"replayed_available", replayed.Available,
		)
	}

	sv, err := r.book.VerifyAccountState(ctx, accountID)
	if err != nil {
		report.Errors++
		reconcileErrors.Inc()
		r.logger.Warn("state verification failed", "account_id", accountID, "error", err)
		return
	}
	if !sv.Match {
		report.StateMismatches = append(report.StateMismatches, accountID)
		r.logger.Warn("account state drift",
			"account_id", accountID,
			"cached", sv.Cached,
			"replayed", sv.Replayed,
		)
	}
}
