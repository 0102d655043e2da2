//go:build integration

package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/testutil"
)

func TestPostgresStore_ReserveCommitFlow(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	led := New(NewPostgresStore(db))
	ctx := context.Background()

	src := idgen.WithPrefix("acct_")
	dst := idgen.WithPrefix("acct_")
	if err := led.Open(ctx, src, "1000.00"); err != nil {
		t.Fatalf("Open src: %v", err)
	}
	if err := led.Open(ctx, dst, "0.00"); err != nil {
		t.Fatalf("Open dst: %v", err)
	}

	txID := idgen.WithPrefix("txn_")
	if err := led.Reserve(ctx, src, txID, "400.00"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	bal, err := led.GetBalance(ctx, src)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Available != "600.00" || bal.Held != "400.00" {
		t.Errorf("after reserve: available %s held %s, want 600.00/400.00", bal.Available, bal.Held)
	}

	if err := led.Commit(ctx, txID, dst); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	srcBal, _ := led.GetBalance(ctx, src)
	dstBal, _ := led.GetBalance(ctx, dst)
	if srcBal.Available != "600.00" || srcBal.Held != "0.00" {
		t.Errorf("src after commit: available %s held %s, want 600.00/0.00", srcBal.Available, srcBal.Held)
	}
	if dstBal.Available != "400.00" {
		t.Errorf("dst after commit: available %s, want 400.00", dstBal.Available)
	}
}

func TestPostgresStore_RollbackRestoresBalance(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	led := New(NewPostgresStore(db))
	ctx := context.Background()

	src := idgen.WithPrefix("acct_")
	if err := led.Open(ctx, src, "250.00"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	txID := idgen.WithPrefix("txn_")
	if err := led.Reserve(ctx, src, txID, "100.00"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := led.Rollback(ctx, txID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	bal, err := led.GetBalance(ctx, src)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Available != "250.00" || bal.Held != "0.00" {
		t.Errorf("after rollback: available %s held %s, want 250.00/0.00", bal.Available, bal.Held)
	}

	// The hold is gone; releasing again is an error
	if err := led.Rollback(ctx, txID); !errors.Is(err, ErrHoldNotFound) {
		t.Errorf("second rollback = %v, want ErrHoldNotFound", err)
	}
}

func TestPostgresStore_InsufficientFunds(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	led := New(NewPostgresStore(db))
	ctx := context.Background()

	src := idgen.WithPrefix("acct_")
	if err := led.Open(ctx, src, "50.00"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	err := led.Reserve(ctx, src, idgen.WithPrefix("txn_"), "50.01")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Reserve over balance = %v, want ErrInsufficientFunds", err)
	}
}

func TestPostgresStore_ReconcileAfterActivity(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	led := New(NewPostgresStore(db))
	ctx := context.Background()

	src := idgen.WithPrefix("acct_")
	dst := idgen.WithPrefix("acct_")
	if err := led.Open(ctx, src, "500.00"); err != nil {
		t.Fatalf("Open src: %v", err)
	}
	if err := led.Open(ctx, dst, "0.00"); err != nil {
		t.Fatalf("Open dst: %v", err)
	}

	committed := idgen.WithPrefix("txn_")
	if err := led.Reserve(ctx, src, committed, "120.00"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := led.Commit(ctx, committed, dst); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rolledBack := idgen.WithPrefix("txn_")
	if err := led.Reserve(ctx, src, rolledBack, "80.00"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := led.Rollback(ctx, rolledBack); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	for _, id := range []string{src, dst} {
		match, replayed, actual, err := led.Reconcile(ctx, id)
		if err != nil {
			t.Fatalf("Reconcile %s: %v", id, err)
		}
		if !match {
			t.Errorf("%s: replayed %+v does not match stored %+v", id, replayed, actual)
		}
	}
}
