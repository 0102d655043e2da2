package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rfontaine/sentra/internal/transaction"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tx(id, source, target, amount string, age time.Duration) *transaction.Transaction {
	return &transaction.Transaction{
		ID:              id,
		SourceAccountID: source,
		TargetAccountID: target,
		Amount:          amount,
		Currency:        "USD",
		Status:          transaction.StatusApproved,
		Timestamp:       testNow.Add(-age),
	}
}

func TestStructuring_Boundaries(t *testing.T) {
	d := NewStructuring(10000, 1000)
	ctx := context.Background()

	for _, tt := range []struct {
		amount string
		fires  bool
	}{
		{"8999.99", false},
		{"9000.00", true},
		{"9500.00", true},
		{"9999.99", true},
		{"10000.00", false},
		{"12000.00", false},
		{"50.00", false},
	} {
		in := &Input{AccountID: "acct_a", Tx: tx("txn_1", "acct_a", "acct_b", tt.amount, 0), Now: testNow}
		findings, err := d.Detect(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		if fired := len(findings) > 0; fired != tt.fires {
			t.Errorf("amount %s: fired = %v, want %v", tt.amount, fired, tt.fires)
		}
		if tt.fires {
			if findings[0].Severity != SeverityMedium {
				t.Errorf("amount %s: severity = %s, want medium", tt.amount, findings[0].Severity)
			}
			ev, ok := findings[0].Evidence.(StructuringEvidence)
			if !ok {
				t.Fatalf("amount %s: evidence type %T", tt.amount, findings[0].Evidence)
			}
			if ev.Amount != tt.amount {
				t.Errorf("evidence amount = %s, want %s", ev.Amount, tt.amount)
			}
		}
	}
}

func TestSmurfing_SmallTransactionsOverThreshold(t *testing.T) {
	d := NewSmurfing(10000, 3000, 48*time.Hour)

	outgoing := make([]*transaction.Transaction, 0, 11)
	for i := 0; i < 11; i++ {
		outgoing = append(outgoing, tx(fmt.Sprintf("txn_%d", i), "acct_a", "acct_b", "950.00", time.Duration(i)*time.Hour))
	}
	in := &Input{
		AccountID: "acct_a",
		Tx:        tx("txn_cur", "acct_a", "acct_c", "950.00", 0),
		Outgoing:  outgoing,
		Now:       testNow,
	}

	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", findings[0].Severity)
	}
	ev := findings[0].Evidence.(SmurfingEvidence)
	if len(ev.TransactionIDs) != 12 {
		t.Errorf("contributing transactions = %d, want 12", len(ev.TransactionIDs))
	}
	if ev.Total != "11400.00" {
		t.Errorf("total = %s, want 11400.00", ev.Total)
	}
}

func TestSmurfing_LargeTransactionsAreNotSmurfing(t *testing.T) {
	// Two near-threshold transfers sum past the threshold, but neither is
	// small. That pattern belongs to the structuring detector.
	d := NewSmurfing(10000, 3000, 48*time.Hour)

	in := &Input{
		AccountID: "acct_a",
		Tx:        tx("txn_2", "acct_a", "acct_b", "9800.00", 0),
		Outgoing:  []*transaction.Transaction{tx("txn_1", "acct_a", "acct_b", "9500.00", time.Hour)},
		Now:       testNow,
	}

	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no smurfing finding, got %d", len(findings))
	}
}

func TestSmurfing_OldTransactionsExcluded(t *testing.T) {
	d := NewSmurfing(10000, 3000, 48*time.Hour)

	outgoing := []*transaction.Transaction{
		tx("txn_old1", "acct_a", "acct_b", "6000.00", 72*time.Hour),
		tx("txn_1", "acct_a", "acct_b", "2000.00", time.Hour),
	}
	in := &Input{
		AccountID: "acct_a",
		Tx:        tx("txn_2", "acct_a", "acct_c", "2000.00", 0),
		Outgoing:  outgoing,
		Now:       testNow,
	}

	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Fatalf("stale transactions should not contribute, got %d findings", len(findings))
	}
}

func TestCircularFlow_DetectsCycle(t *testing.T) {
	d := NewCircularFlow(time.Hour, 6)

	recent := []*transaction.Transaction{
		tx("txn_1", "acct_a", "acct_b", "5000.00", 30*time.Minute),
		tx("txn_2", "acct_b", "acct_c", "4900.00", 20*time.Minute),
	}
	in := &Input{
		AccountID: "acct_c",
		Tx:        tx("txn_3", "acct_c", "acct_a", "4800.00", 0),
		Recent:    recent,
		Now:       testNow,
	}

	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Severity != SeverityCritical {
		t.Errorf("severity = %s, want critical", findings[0].Severity)
	}
	ev := findings[0].Evidence.(CircularFlowEvidence)
	want := []string{"acct_c", "acct_a", "acct_b", "acct_c"}
	if len(ev.Path) != len(want) {
		t.Fatalf("path = %v, want %v", ev.Path, want)
	}
	for i := range want {
		if ev.Path[i] != want[i] {
			t.Fatalf("path = %v, want %v", ev.Path, want)
		}
	}
}

func TestCircularFlow_AccountLevel(t *testing.T) {
	// Assessing acct_a without a live transaction still sees the full cycle
	// through recorded history.
	d := NewCircularFlow(time.Hour, 6)

	in := &Input{
		AccountID: "acct_a",
		Recent: []*transaction.Transaction{
			tx("txn_1", "acct_a", "acct_b", "5000.00", 30*time.Minute),
			tx("txn_2", "acct_b", "acct_c", "4900.00", 20*time.Minute),
			tx("txn_3", "acct_c", "acct_a", "4800.00", 10*time.Minute),
		},
		Now: testNow,
	}

	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	ev := findings[0].Evidence.(CircularFlowEvidence)
	if ev.Path[0] != "acct_a" || ev.Path[len(ev.Path)-1] != "acct_a" {
		t.Errorf("path should start and end at the subject, got %v", ev.Path)
	}
}

func TestCircularFlow_TwoPartyRoundTripIgnored(t *testing.T) {
	d := NewCircularFlow(time.Hour, 6)

	in := &Input{
		AccountID: "acct_b",
		Tx:        tx("txn_2", "acct_b", "acct_a", "500.00", 0),
		Recent: []*transaction.Transaction{
			tx("txn_1", "acct_a", "acct_b", "500.00", 10*time.Minute),
		},
		Now: testNow,
	}

	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Fatalf("two-party round trip should not fire, got %d findings", len(findings))
	}
}

func TestCircularFlow_StaleEdgesExcluded(t *testing.T) {
	d := NewCircularFlow(time.Hour, 6)

	in := &Input{
		AccountID: "acct_c",
		Tx:        tx("txn_3", "acct_c", "acct_a", "4800.00", 0),
		Recent: []*transaction.Transaction{
			tx("txn_1", "acct_a", "acct_b", "5000.00", 2*time.Hour), // outside window
			tx("txn_2", "acct_b", "acct_c", "4900.00", 20*time.Minute),
		},
		Now: testNow,
	}

	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Fatalf("broken cycle should not fire, got %d findings", len(findings))
	}
}

func TestHighVelocity(t *testing.T) {
	d := NewHighVelocity(10, time.Hour)

	outgoing := func(n int) []*transaction.Transaction {
		txs := make([]*transaction.Transaction, 0, n)
		for i := 0; i < n; i++ {
			txs = append(txs, tx(fmt.Sprintf("txn_%d", i), "acct_a", "acct_b", "10.00", time.Duration(i)*time.Minute))
		}
		return txs
	}

	// 10 prior plus the current one exceeds the limit of 10.
	in := &Input{AccountID: "acct_a", Tx: tx("txn_cur", "acct_a", "acct_b", "10.00", 0), Outgoing: outgoing(10), Now: testNow}
	findings, err := d.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding at 11 tx/hour, got %d", len(findings))
	}
	ev := findings[0].Evidence.(VelocityEvidence)
	if ev.Count != 11 || ev.Limit != 10 {
		t.Errorf("evidence = %+v, want count 11 limit 10", ev)
	}

	// Exactly at the limit is fine.
	in = &Input{AccountID: "acct_a", Tx: tx("txn_cur", "acct_a", "acct_b", "10.00", 0), Outgoing: outgoing(9), Now: testNow}
	findings, _ = d.Detect(context.Background(), in)
	if len(findings) != 0 {
		t.Fatalf("expected no finding at the limit, got %d", len(findings))
	}
}

type stubDetector struct {
	name     string
	findings []Finding
	err      error
	delay    time.Duration
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Detect(ctx context.Context, _ *Input) ([]Finding, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.findings, s.err
}

func TestRunner_RegistryOrder(t *testing.T) {
	f := func(kind Kind) Finding { return Finding{Kind: kind, Severity: SeverityLow} }
	r := NewRunner([]Detector{
		&stubDetector{name: "first", findings: []Finding{f(KindStructuring)}, delay: 20 * time.Millisecond},
		&stubDetector{name: "second", findings: []Finding{f(KindSmurfing)}},
		&stubDetector{name: "third", findings: []Finding{f(KindHighVelocity)}},
	}, time.Second, testLogger())

	findings := r.Run(context.Background(), &Input{AccountID: "acct_a", Now: testNow})
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(findings))
	}
	// Slowest detector still reports first because the registry fixes order.
	want := []Kind{KindStructuring, KindSmurfing, KindHighVelocity}
	for i, k := range want {
		if findings[i].Kind != k {
			t.Errorf("findings[%d].Kind = %s, want %s", i, findings[i].Kind, k)
		}
	}
}

func TestRunner_DropsFailedDetector(t *testing.T) {
	r := NewRunner([]Detector{
		&stubDetector{name: "broken", err: errors.New("boom")},
		&stubDetector{name: "ok", findings: []Finding{{Kind: KindSmurfing, Severity: SeverityHigh}}},
	}, time.Second, testLogger())

	findings := r.Run(context.Background(), &Input{AccountID: "acct_a", Now: testNow})
	if len(findings) != 1 || findings[0].Kind != KindSmurfing {
		t.Fatalf("expected only the healthy detector's finding, got %v", findings)
	}
}

func TestRunner_DropsOverrunDetector(t *testing.T) {
	r := NewRunner([]Detector{
		&stubDetector{name: "slow", findings: []Finding{{Kind: KindCircularFlow}}, delay: time.Second},
		&stubDetector{name: "fast", findings: []Finding{{Kind: KindStructuring, Severity: SeverityMedium}}},
	}, 50*time.Millisecond, testLogger())

	findings := r.Run(context.Background(), &Input{AccountID: "acct_a", Now: testNow})
	if len(findings) != 1 || findings[0].Kind != KindStructuring {
		t.Fatalf("expected the overrun detector to be dropped, got %v", findings)
	}
}
