package risk

import (
	"context"
	"testing"

	"github.com/rfontaine/sentra/internal/detector"
)

func finding(kind detector.Kind, sev detector.Severity) detector.Finding {
	return detector.Finding{Kind: kind, Severity: sev}
}

func TestLevelFor(t *testing.T) {
	for _, tt := range []struct {
		p    float64
		want Level
	}{
		{0.0, LevelLow},
		{0.39, LevelLow},
		{0.4, LevelMedium},
		{0.69, LevelMedium},
		{0.7, LevelHigh},
		{1.0, LevelHigh},
	} {
		if got := LevelFor(tt.p); got != tt.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestRuleProbability(t *testing.T) {
	a := NewAggregator()

	if got := a.RuleProbability(nil); got != 0.0 {
		t.Errorf("no findings should score 0, got %v", got)
	}

	got := a.RuleProbability([]detector.Finding{finding(detector.KindStructuring, detector.SeverityMedium)})
	if got != 0.25 {
		t.Errorf("single medium = %v, want 0.25", got)
	}

	// Corroborating findings raise the probability.
	got = a.RuleProbability([]detector.Finding{
		finding(detector.KindStructuring, detector.SeverityMedium),
		finding(detector.KindHighVelocity, detector.SeverityMedium),
	})
	if got != 0.30 {
		t.Errorf("two mediums = %v, want 0.30", got)
	}

	// Cap stays below certainty no matter how many findings pile up.
	many := make([]detector.Finding, 20)
	for i := range many {
		many[i] = finding(detector.KindSmurfing, detector.SeverityCritical)
	}
	if got := a.RuleProbability(many); got != 0.95 {
		t.Errorf("capped probability = %v, want 0.95", got)
	}
}

func TestRuleProbability_Monotonic(t *testing.T) {
	a := NewAggregator()
	findings := []detector.Finding{}
	prev := 0.0
	for _, sev := range []detector.Severity{
		detector.SeverityLow, detector.SeverityMedium, detector.SeverityHigh, detector.SeverityCritical,
	} {
		findings = append(findings, finding(detector.KindStructuring, sev))
		got := a.RuleProbability(findings)
		if got < prev {
			t.Fatalf("adding a %s finding lowered probability: %v < %v", sev, got, prev)
		}
		prev = got
	}
}

func TestAggregate_CriticalImpliesHigh(t *testing.T) {
	a := NewAggregator()

	asmt := a.Aggregate("acct_1", "txn_1",
		[]detector.Finding{finding(detector.KindCircularFlow, detector.SeverityCritical)},
		0.0, true)

	if asmt.RuleProbability < 0.7 {
		t.Errorf("critical finding must put rule probability at or above 0.7, got %v", asmt.RuleProbability)
	}
	if asmt.Level != LevelHigh {
		t.Errorf("level = %s, want HIGH", asmt.Level)
	}
	if asmt.PrimaryFlag != detector.KindCircularFlow {
		t.Errorf("primary flag = %s, want CIRCULAR_FLOW", asmt.PrimaryFlag)
	}
}

func TestAggregate_MaxCombination(t *testing.T) {
	a := NewAggregator()

	// ML dominates when rules are quiet.
	asmt := a.Aggregate("acct_1", "txn_1", nil, 0.85, true)
	if asmt.Probability != 0.85 {
		t.Errorf("probability = %v, want 0.85 (ML side)", asmt.Probability)
	}
	if asmt.Source != SourceCombined {
		t.Errorf("source = %s, want combined", asmt.Source)
	}

	// Rules dominate when the model is calm.
	asmt = a.Aggregate("acct_1", "txn_2",
		[]detector.Finding{finding(detector.KindSmurfing, detector.SeverityHigh)}, 0.1, true)
	if asmt.Probability != 0.45 {
		t.Errorf("probability = %v, want 0.45 (rule side)", asmt.Probability)
	}
}

func TestAggregate_RuleOnlyFallback(t *testing.T) {
	a := NewAggregator()

	asmt := a.Aggregate("acct_1", "txn_1",
		[]detector.Finding{finding(detector.KindStructuring, detector.SeverityMedium)},
		0.99, false)

	if asmt.Source != SourceRuleOnly {
		t.Errorf("source = %s, want rule_only", asmt.Source)
	}
	if asmt.MLProbability != 0.0 {
		t.Errorf("unavailable model must not contribute, pML = %v", asmt.MLProbability)
	}
	if asmt.Probability != 0.25 {
		t.Errorf("probability = %v, want 0.25", asmt.Probability)
	}
}

func TestAggregate_PrimaryFlagTieBreak(t *testing.T) {
	a := NewAggregator()

	asmt := a.Aggregate("acct_1", "txn_1", []detector.Finding{
		finding(detector.KindStructuring, detector.SeverityMedium),
		finding(detector.KindHighVelocity, detector.SeverityMedium),
	}, 0.0, true)

	if asmt.PrimaryFlag != detector.KindStructuring {
		t.Errorf("first worst finding should win ties, got %s", asmt.PrimaryFlag)
	}
}

func TestMemoryStore_RecordAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	agg := NewAggregator()

	a1 := agg.Aggregate("acct_1", "txn_1", []detector.Finding{finding(detector.KindStructuring, detector.SeverityMedium)}, 0.0, true)
	a2 := agg.Aggregate("acct_1", "txn_2", nil, 0.2, true)
	if err := s.Record(ctx, a1); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, a2); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetByTransaction(ctx, "txn_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a1.ID {
		t.Errorf("GetByTransaction returned %s, want %s", got.ID, a1.ID)
	}

	list, err := s.ListByAccount(ctx, "acct_1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != a2.ID {
		t.Errorf("ListByAccount should return newest first, got %d entries", len(list))
	}

	if _, err := s.Get(ctx, "asmt_missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
