package detector

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rfontaine/sentra/internal/money"
)

// Smurfing fires when many individually small outgoing transactions inside
// the sliding window together exceed the reporting threshold while no single
// transaction does: spreading a large sum across transfers too small to draw
// scrutiny on their own.
type Smurfing struct {
	Threshold   float64 // total that must be exceeded across the window
	SmallAmount float64 // ceiling below which a transaction counts as "small"
	Window      time.Duration
}

// NewSmurfing creates a smurfing detector.
func NewSmurfing(threshold, smallAmount float64, window time.Duration) *Smurfing {
	return &Smurfing{Threshold: threshold, SmallAmount: smallAmount, Window: window}
}

func (d *Smurfing) Name() string { return "smurfing" }

func (d *Smurfing) Detect(_ context.Context, in *Input) ([]Finding, error) {
	cutoff := in.Now.Add(-d.Window)

	// The transaction under evaluation must itself be part of the pattern.
	// A near-threshold transfer is structuring territory, not smurfing.
	if in.Tx != nil {
		v, ok := money.ParseFloat(in.Tx.Amount)
		if !ok || v > d.SmallAmount {
			return nil, nil
		}
	}

	total := big.NewInt(0)
	var contributing []string
	anyLarge := false

	consider := func(id, amount string, ts time.Time) {
		if ts.Before(cutoff) {
			return
		}
		v, ok := money.ParseFloat(amount)
		if !ok {
			return
		}
		if v >= d.Threshold {
			anyLarge = true
			return
		}
		if v > d.SmallAmount {
			return
		}
		cents, _ := money.Parse(amount)
		total.Add(total, cents)
		contributing = append(contributing, id)
	}

	for _, tx := range in.Outgoing {
		consider(tx.ID, tx.Amount, tx.Timestamp)
	}
	if in.Tx != nil {
		consider(in.Tx.ID, in.Tx.Amount, in.Now)
	}

	if anyLarge {
		return nil, nil
	}
	thresholdCents, _ := money.Parse(fmt.Sprintf("%.2f", d.Threshold))
	if total.Cmp(thresholdCents) <= 0 {
		return nil, nil
	}

	return []Finding{{
		Kind:     KindSmurfing,
		Severity: SeverityHigh,
		Description: fmt.Sprintf("%d small transactions totaling %s exceed the %.0f threshold within %s",
			len(contributing), money.Format(total), d.Threshold, d.Window),
		Evidence: SmurfingEvidence{
			TransactionIDs: contributing,
			Total:          money.Format(total),
			Window:         d.Window.String(),
		},
	}}, nil
}
