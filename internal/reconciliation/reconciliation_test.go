package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/engine"
	"github.com/rfontaine/sentra/internal/ledger"
)

type fakeBook struct {
	accounts   []*account.Account
	driftLedg  map[string]bool
	driftState map[string]bool
	failVerify map[string]error
}

func (f *fakeBook) ListAccounts(_ context.Context, limit, offset int) ([]*account.Account, error) {
	if offset >= len(f.accounts) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.accounts) {
		end = len(f.accounts)
	}
	return f.accounts[offset:end], nil
}

func (f *fakeBook) ReconcileLedger(_ context.Context, accountID string) (bool, *ledger.Balance, *ledger.Balance, error) {
	bal := &ledger.Balance{AccountID: accountID, Available: "100.00", Held: "0.00"}
	if f.driftLedg[accountID] {
		off := &ledger.Balance{AccountID: accountID, Available: "90.00", Held: "0.00"}
		return false, bal, off, nil
	}
	return true, bal, bal, nil
}

func (f *fakeBook) VerifyAccountState(_ context.Context, accountID string) (*engine.StateVerification, error) {
	if err := f.failVerify[accountID]; err != nil {
		return nil, err
	}
	sv := &engine.StateVerification{
		AccountID: accountID,
		Cached:    account.StateActive,
		Replayed:  account.StateActive,
		Match:     true,
	}
	if f.driftState[accountID] {
		sv.Cached = account.StateFrozen
		sv.Match = false
	}
	return sv, nil
}

func testAccounts(n int) []*account.Account {
	out := make([]*account.Account, n)
	for i := range out {
		out[i] = &account.Account{
			ID:    string(rune('a'+i)) + "-acct",
			State: account.StateActive,
		}
	}
	return out
}

func TestRunAll_CleanBook(t *testing.T) {
	book := &fakeBook{accounts: testAccounts(3)}
	runner := NewRunner(book, slog.Default())

	report, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if !report.Clean() {
		t.Errorf("clean book reported drift: %+v", report)
	}
	if report.AccountsChecked != 3 {
		t.Errorf("accounts checked = %d, want 3", report.AccountsChecked)
	}
}

func TestRunAll_ReportsDrift(t *testing.T) {
	accounts := testAccounts(4)
	book := &fakeBook{
		accounts:   accounts,
		driftLedg:  map[string]bool{accounts[1].ID: true},
		driftState: map[string]bool{accounts[2].ID: true},
	}
	runner := NewRunner(book, slog.Default())

	report, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.Clean() {
		t.Fatal("drifted book reported clean")
	}
	if len(report.LedgerMismatches) != 1 || report.LedgerMismatches[0] != accounts[1].ID {
		t.Errorf("ledger mismatches = %v, want [%s]", report.LedgerMismatches, accounts[1].ID)
	}
	if len(report.StateMismatches) != 1 || report.StateMismatches[0] != accounts[2].ID {
		t.Errorf("state mismatches = %v, want [%s]", report.StateMismatches, accounts[2].ID)
	}
}

func TestRunAll_CountsErrorsWithoutAborting(t *testing.T) {
	accounts := testAccounts(3)
	book := &fakeBook{
		accounts:   accounts,
		failVerify: map[string]error{accounts[0].ID: errors.New("boom")},
	}
	runner := NewRunner(book, slog.Default())

	report, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.Errors != 1 {
		t.Errorf("errors = %d, want 1", report.Errors)
	}
	if report.AccountsChecked != 3 {
		t.Errorf("accounts checked = %d, want 3 (sweep must not abort)", report.AccountsChecked)
	}
}

func TestTimerStartStop(t *testing.T) {
	book := &fakeBook{accounts: testAccounts(1)}
	timer := NewTimer(NewRunner(book, slog.Default()), time.Hour, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		timer.Start(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for !timer.Running() {
		select {
		case <-deadline:
			t.Fatal("timer never reported running")
		case <-time.After(time.Millisecond):
		}
	}

	timer.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not stop")
	}
	if timer.Running() {
		t.Error("stopped timer still reports running")
	}
}
