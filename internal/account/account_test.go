package account

import (
	"context"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateActive, StateFlagged},
		{StateActive, StateFrozen},
		{StateActive, StateBlocked},
		{StateFlagged, StateFrozen},
		{StateFlagged, StateBlocked},
		{StateFrozen, StateActive},
		{StateFrozen, StateBlocked},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("%s → %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to State }{
		{StateBlocked, StateActive},
		{StateBlocked, StateFlagged},
		{StateBlocked, StateFrozen},
		{StateBlocked, StateBlocked},
		{StateFlagged, StateActive}, // only appeals reactivate, and only from FROZEN
		{StateActive, StateActive},
		{StateFrozen, StateFlagged},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("%s → %s should be denied", tr.from, tr.to)
		}
	}
}

func TestBlockedIsTerminal(t *testing.T) {
	for _, to := range []State{StateActive, StateFlagged, StateFrozen, StateBlocked} {
		if err := ValidateTransition(StateBlocked, to); err != ErrInvalidTransition {
			t.Errorf("BLOCKED → %s should return ErrInvalidTransition, got %v", to, err)
		}
	}
}

func TestIsRestricted(t *testing.T) {
	for _, tt := range []struct {
		state      State
		restricted bool
	}{
		{StateActive, false},
		{StateFlagged, false},
		{StateFrozen, true},
		{StateBlocked, true},
	} {
		a := &Account{State: tt.state}
		if a.IsRestricted() != tt.restricted {
			t.Errorf("IsRestricted(%s) = %v", tt.state, a.IsRestricted())
		}
	}
}

func TestMemoryStore_UpdateState_CompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, &Account{ID: "acct_1", OwnerName: "Dana"}); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateState(ctx, "acct_1", StateActive, StateFlagged); err != nil {
		t.Fatalf("ACTIVE → FLAGGED should succeed: %v", err)
	}
	// Stale writer still believes the account is ACTIVE.
	if err := s.UpdateState(ctx, "acct_1", StateActive, StateFrozen); err != ErrInvalidTransition {
		t.Fatalf("stale compare-and-set should fail, got %v", err)
	}

	got, _ := s.Get(ctx, "acct_1")
	if got.State != StateFlagged {
		t.Errorf("state = %s, want FLAGGED", got.State)
	}
}

func TestMemoryStore_ListHighRisk(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Create(ctx, &Account{ID: "acct_a", OwnerName: "A", RiskScore: 0.9})
	_ = s.Create(ctx, &Account{ID: "acct_b", OwnerName: "B", RiskScore: 0.2})
	_ = s.Create(ctx, &Account{ID: "acct_c", OwnerName: "C", RiskScore: 0.75})

	got, err := s.ListHighRisk(ctx, 0.7, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 high-risk accounts, got %d", len(got))
	}
	if got[0].ID != "acct_a" {
		t.Errorf("expected highest risk first, got %s", got[0].ID)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "acct_missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
