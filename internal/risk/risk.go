// Package risk turns detector findings and an ML probability into a single
// risk assessment per evaluation.
//
// The rule-derived probability and the model probability are combined by
// taking the maximum, so a confident signal from either side is never
// averaged away by the other. Assessments are persisted as the explanation
// record for every screening decision.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/rfontaine/sentra/internal/detector"
)

// ErrNotFound is returned when no assessment matches the lookup.
var ErrNotFound = errors.New("risk assessment not found")

// Level buckets a probability for human consumption.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Level boundaries. Probabilities below LowCeiling are LOW, below
// MediumCeiling are MEDIUM, everything else is HIGH.
const (
	LowCeiling    = 0.4
	MediumCeiling = 0.7
)

// Source records which signals contributed to an assessment.
type Source string

const (
	SourceCombined Source = "combined"  // rules and ML model
	SourceRuleOnly Source = "rule_only" // model unavailable or timed out
)

// RiskAssessment is the full explanation of one screening decision.
// ContributingFactors are ordered by severity, worst first, ties kept in
// detection order; PrimaryFlag is the kind of the first factor.
type RiskAssessment struct {
	ID                  string             `json:"id"`
	AccountID           string             `json:"accountId"`
	TransactionID       string             `json:"transactionId,omitempty"` // empty for account-level sweeps
	Probability         float64            `json:"probability"`
	RuleProbability     float64            `json:"ruleProbability"`
	MLProbability       float64            `json:"mlProbability"`
	Level               Level              `json:"level"`
	ContributingFactors []detector.Finding `json:"contributingFactors"`
	PrimaryFlag         detector.Kind      `json:"primaryFlag,omitempty"`
	Source              Source             `json:"source"`
	EvaluatedAt         time.Time          `json:"evaluatedAt"`
}

// LevelFor buckets a probability.
func LevelFor(p float64) Level {
	switch {
	case p < LowCeiling:
		return LevelLow
	case p < MediumCeiling:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Store persists risk assessments.
type Store interface {
	Record(ctx context.Context, a *RiskAssessment) error
	Get(ctx context.Context, id string) (*RiskAssessment, error)
	GetByTransaction(ctx context.Context, txID string) (*RiskAssessment, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*RiskAssessment, error)
}
