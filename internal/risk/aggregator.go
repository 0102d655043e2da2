package risk

import (
	"math"
	"sort"
	"time"

	"github.com/rfontaine/sentra/internal/detector"
	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/metrics"
)

// Severity weights anchor the rule probability. A critical finding alone
// lands at 0.70, which is exactly the HIGH boundary, so a critical typology
// can never be bucketed below HIGH.
var severityWeights = map[detector.Severity]float64{
	detector.SeverityLow:      0.10,
	detector.SeverityMedium:   0.25,
	detector.SeverityHigh:     0.45,
	detector.SeverityCritical: 0.70,
}

const (
	// Each finding beyond the worst one nudges the rule probability up.
	corroborationStep = 0.05
	ruleCap           = 0.95
)

// Aggregator combines findings with a model probability into assessments.
type Aggregator struct{}

// NewAggregator creates an aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// RuleProbability derives a probability from findings alone: the weight of
// the worst finding, raised a step per corroborating finding, capped below 1.
func (a *Aggregator) RuleProbability(findings []detector.Finding) float64 {
	if len(findings) == 0 {
		return 0.0
	}
	worst := 0.0
	for _, f := range findings {
		if w := severityWeights[f.Severity]; w > worst {
			worst = w
		}
	}
	p := worst + corroborationStep*float64(len(findings)-1)
	if p > ruleCap {
		p = ruleCap
	}
	return math.Round(p*1000) / 1000
}

// Aggregate builds the assessment for one evaluation. mlProbability is
// ignored when mlAvailable is false and the assessment is marked rule_only.
func (a *Aggregator) Aggregate(accountID, txID string, findings []detector.Finding, mlProbability float64, mlAvailable bool) *RiskAssessment {
	pRule := a.RuleProbability(findings)

	source := SourceCombined
	pML := mlProbability
	if !mlAvailable {
		source = SourceRuleOnly
		pML = 0.0
	}

	p := pRule
	if pML > p {
		p = pML
	}

	factors := orderFactors(findings)
	var flag detector.Kind
	if len(factors) > 0 {
		flag = factors[0].Kind
	}

	assessment := &RiskAssessment{
		ID:                  idgen.WithPrefix("asmt_"),
		AccountID:           accountID,
		TransactionID:       txID,
		Probability:         p,
		RuleProbability:     pRule,
		MLProbability:       pML,
		Level:               LevelFor(p),
		ContributingFactors: factors,
		PrimaryFlag:         flag,
		Source:              source,
		EvaluatedAt:         time.Now().UTC(),
	}
	metrics.AssessmentsTotal.WithLabelValues(string(assessment.Level), string(source)).Inc()
	return assessment
}

// orderFactors sorts findings worst severity first, keeping detection order
// within a severity so the ordering, and with it the primary flag, is stable.
func orderFactors(findings []detector.Finding) []detector.Finding {
	factors := append([]detector.Finding(nil), findings...)
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Severity.Rank() > factors[j].Severity.Rank()
	})
	return factors
}
