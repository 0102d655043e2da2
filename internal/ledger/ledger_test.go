package ledger

import (
	"context"
	"testing"
)

func TestReserveCommitFlow(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	if err := l.Open(ctx, "acct_src", "1000.00"); err != nil {
		t.Fatal(err)
	}
	if err := l.Open(ctx, "acct_dst", "0.00"); err != nil {
		t.Fatal(err)
	}

	if err := l.Reserve(ctx, "acct_src", "txn_1", "400.00"); err != nil {
		t.Fatal(err)
	}

	bal, _ := l.GetBalance(ctx, "acct_src")
	if bal.Available != "600.00" || bal.Held != "400.00" {
		t.Fatalf("after reserve: available %s held %s", bal.Available, bal.Held)
	}

	if err := l.Commit(ctx, "txn_1", "acct_dst"); err != nil {
		t.Fatal(err)
	}

	src, _ := l.GetBalance(ctx, "acct_src")
	if src.Available != "600.00" || src.Held != "0.00" || src.TotalOut != "400.00" {
		t.Errorf("source after commit: %+v", src)
	}
	dst, _ := l.GetBalance(ctx, "acct_dst")
	if dst.Available != "400.00" {
		t.Errorf("target after commit: available %s, want 400.00", dst.Available)
	}
}

func TestReserveRollbackRestoresFunds(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Open(ctx, "acct_src", "1000.00")
	if err := l.Reserve(ctx, "acct_src", "txn_1", "999.99"); err != nil {
		t.Fatal(err)
	}
	if err := l.Rollback(ctx, "txn_1"); err != nil {
		t.Fatal(err)
	}

	bal, _ := l.GetBalance(ctx, "acct_src")
	if bal.Available != "1000.00" || bal.Held != "0.00" {
		t.Errorf("after rollback: available %s held %s", bal.Available, bal.Held)
	}
	if bal.TotalOut != "0.00" {
		t.Errorf("rollback must not count as spend, total out %s", bal.TotalOut)
	}
}

func TestReserveInsufficientFunds(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Open(ctx, "acct_src", "100.00")
	if err := l.Reserve(ctx, "acct_src", "txn_1", "100.01"); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// A hold reduces what a second transfer can reserve.
	if err := l.Reserve(ctx, "acct_src", "txn_2", "60.00"); err != nil {
		t.Fatal(err)
	}
	if err := l.Reserve(ctx, "acct_src", "txn_3", "60.00"); err != ErrInsufficientFunds {
		t.Fatalf("held funds must not be reservable, got %v", err)
	}
}

func TestReserveValidation(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()
	_ = l.Open(ctx, "acct_src", "100.00")

	for _, amount := range []string{"", "abc", "-5.00", "0.00"} {
		if err := l.Reserve(ctx, "acct_src", "txn_x", amount); err != ErrInvalidAmount {
			t.Errorf("Reserve(%q) = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if err := l.Reserve(ctx, "acct_unknown", "txn_y", "5.00"); err != ErrAccountNotFound {
		t.Errorf("unknown account = %v, want ErrAccountNotFound", err)
	}
}

func TestCommitUnknownHold(t *testing.T) {
	l := New(NewMemoryStore())
	if err := l.Commit(context.Background(), "txn_ghost", "acct_dst"); err != ErrHoldNotFound {
		t.Fatalf("expected ErrHoldNotFound, got %v", err)
	}
}

func TestRebuildBalanceMatchesStore(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Open(ctx, "acct_a", "500.00")
	_ = l.Open(ctx, "acct_b", "100.00")
	_ = l.Reserve(ctx, "acct_a", "txn_1", "200.00")
	_ = l.Commit(ctx, "txn_1", "acct_b")
	_ = l.Reserve(ctx, "acct_a", "txn_2", "50.00")
	_ = l.Rollback(ctx, "txn_2")
	_ = l.Reserve(ctx, "acct_a", "txn_3", "25.00")

	for _, id := range []string{"acct_a", "acct_b"} {
		match, replayed, actual, err := l.Reconcile(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !match {
			t.Errorf("%s: replay %+v does not match stored %+v", id, replayed, actual)
		}
	}
}
