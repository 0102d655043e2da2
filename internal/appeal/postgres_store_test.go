//go:build integration

package appeal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/testutil"
)

func TestPostgresStore_OnePendingPerAccount(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	accountID := idgen.WithPrefix("acct_")

	first := &Appeal{
		ID:            idgen.WithPrefix("apl_"),
		AccountID:     accountID,
		Justification: "payroll run, not layering",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := &Appeal{
		ID:            idgen.WithPrefix("apl_"),
		AccountID:     accountID,
		Justification: "second attempt",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.Create(ctx, second); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("Create while pending = %v, want ErrAlreadyPending", err)
	}

	// Resolution frees the slot
	if err := store.Resolve(ctx, first.ID, StatusRejected, "compliance"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("Create after resolution: %v", err)
	}
}

func TestPostgresStore_ResolveIsFinal(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	a := &Appeal{
		ID:            idgen.WithPrefix("apl_"),
		AccountID:     idgen.WithPrefix("acct_"),
		Justification: "mistaken freeze",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Resolve(ctx, a.ID, StatusApproved, "compliance"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := store.Resolve(ctx, a.ID, StatusRejected, "compliance"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second Resolve = %v, want ErrAlreadyResolved", err)
	}

	got, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %s, want APPROVED", got.Status)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved appeal should carry a resolution time")
	}
}

func TestPostgresStore_PendingQueueOrder(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		a := &Appeal{
			ID:            idgen.WithPrefix("apl_"),
			AccountID:     idgen.WithPrefix("acct_"),
			Justification: "queue order test",
			Status:        StatusPending,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Create(ctx, a); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		ids = append(ids, a.ID)
	}

	queue, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("queue length = %d, want 3", len(queue))
	}
	for i, a := range queue {
		if a.ID != ids[i] {
			t.Errorf("queue[%d] = %s, want %s (oldest first)", i, a.ID, ids[i])
		}
	}
}
