// Package detector implements the money-laundering typology detectors.
//
// Each detector is a pure function of a subject account's recent transaction
// history: given the same window it always emits the same findings, in the
// same order, with no side effects. Detectors run concurrently under a
// bounded time budget. A detector that errors or overruns contributes no
// findings; it never fails the overall evaluation and never approves
// anything by itself.
package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/rfontaine/sentra/internal/metrics"
	"github.com/rfontaine/sentra/internal/transaction"
)

// Kind identifies a typology.
type Kind string

const (
	KindStructuring  Kind = "STRUCTURING"
	KindSmurfing     Kind = "SMURFING"
	KindCircularFlow Kind = "CIRCULAR_FLOW"
	KindHighVelocity Kind = "HIGH_VELOCITY"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison (higher is worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Evidence is the kind-specific payload of a finding. Each detector kind has
// exactly one evidence type, so downstream consumers never deal with
// free-form optional fields.
type Evidence interface {
	EvidenceKind() Kind
}

// StructuringEvidence records an amount sitting just under the reporting
// threshold.
type StructuringEvidence struct {
	Amount    string  `json:"amount"`
	Threshold float64 `json:"threshold"`
	Distance  float64 `json:"distance"` // threshold − amount
}

func (StructuringEvidence) EvidenceKind() Kind { return KindStructuring }

// SmurfingEvidence records the set of small transactions that together
// exceed the threshold.
type SmurfingEvidence struct {
	TransactionIDs []string `json:"transactionIds"`
	Total          string   `json:"total"`
	Window         string   `json:"window"`
}

func (SmurfingEvidence) EvidenceKind() Kind { return KindSmurfing }

// CircularFlowEvidence records the ordered cycle path, starting and ending
// at the subject account.
type CircularFlowEvidence struct {
	Path   []string `json:"path"`
	Window string   `json:"window"`
}

func (CircularFlowEvidence) EvidenceKind() Kind { return KindCircularFlow }

// VelocityEvidence records the observed transaction rate.
type VelocityEvidence struct {
	Count  int    `json:"count"`
	Limit  int    `json:"limit"`
	Window string `json:"window"`
}

func (VelocityEvidence) EvidenceKind() Kind { return KindHighVelocity }

// Finding is a single typed detector output.
type Finding struct {
	Kind        Kind     `json:"kind"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Evidence    Evidence `json:"evidence"`
}

// Input is the read-only view a detector sees. Tx is the transaction under
// evaluation, or nil when assessing an account outside a transaction.
// Outgoing holds the subject's outgoing transactions inside the widest
// configured window, oldest first, excluding Tx. Recent holds all
// transactions inside the graph recency window, oldest first, excluding Tx.
type Input struct {
	AccountID string
	Tx        *transaction.Transaction
	Outgoing  []*transaction.Transaction
	Recent    []*transaction.Transaction
	Now       time.Time
}

// Detector inspects an input window and emits zero or more findings.
type Detector interface {
	Name() string
	Detect(ctx context.Context, in *Input) ([]Finding, error)
}

// Runner fans detectors out concurrently and joins before aggregation.
type Runner struct {
	detectors []Detector
	budget    time.Duration
	logger    *slog.Logger
}

// NewRunner creates a runner over a fixed, ordered detector registry. The
// registry order fixes the order findings are reported in, keeping results
// deterministic despite concurrent execution.
func NewRunner(detectors []Detector, budget time.Duration, logger *slog.Logger) *Runner {
	if budget <= 0 {
		budget = 2 * time.Second
	}
	return &Runner{detectors: detectors, budget: budget, logger: logger}
}

// Run executes every detector against the input and returns the joined
// findings in registry order. A detector error or budget overrun drops that
// detector's findings only; Run itself never fails.
func (r *Runner) Run(ctx context.Context, in *Input) []Finding {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	type slot struct {
		findings []Finding
		err      error
	}
	results := make([]slot, len(r.detectors))
	done := make(chan int, len(r.detectors))

	for i, d := range r.detectors {
		go func(i int, d Detector) {
			findings, err := d.Detect(ctx, in)
			results[i] = slot{findings: findings, err: err}
			done <- i
		}(i, d)
	}

	completed := make([]bool, len(r.detectors))
	remaining := len(r.detectors)
	for remaining > 0 {
		select {
		case i := <-done:
			completed[i] = true
			remaining--
		case <-ctx.Done():
			remaining = 0
		}
	}

	var findings []Finding
	for i, d := range r.detectors {
		if !completed[i] {
			r.logger.Warn("detector overran budget, findings dropped", "detector", d.Name())
			continue
		}
		if results[i].err != nil {
			r.logger.Warn("detector failed, findings dropped", "detector", d.Name(), "error", results[i].err)
			continue
		}
		for _, f := range results[i].findings {
			metrics.FindingsTotal.WithLabelValues(string(f.Kind)).Inc()
		}
		findings = append(findings, results[i].findings...)
	}
	return findings
}
