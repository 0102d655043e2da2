package detector

import (
	"context"
	"fmt"

	"github.com/rfontaine/sentra/internal/money"
)

// Structuring fires when a transaction amount sits in the proximity band
// just under the statutory reporting threshold: splitting a large sum into
// $9,500 chunks to duck a $10,000 report.
type Structuring struct {
	Threshold float64 // statutory reporting threshold
	Band      float64 // width of the proximity band below the threshold
}

// NewStructuring creates a structuring detector for the given threshold and band.
func NewStructuring(threshold, band float64) *Structuring {
	return &Structuring{Threshold: threshold, Band: band}
}

func (d *Structuring) Name() string { return "structuring" }

func (d *Structuring) Detect(_ context.Context, in *Input) ([]Finding, error) {
	if in.Tx == nil {
		// Account-level assessment: check the most recent outgoing amounts.
		var findings []Finding
		for _, tx := range in.Outgoing {
			if f, ok := d.check(tx.Amount); ok {
				findings = append(findings, f)
			}
		}
		return findings, nil
	}

	if f, ok := d.check(in.Tx.Amount); ok {
		return []Finding{f}, nil
	}
	return nil, nil
}

func (d *Structuring) check(amount string) (Finding, bool) {
	v, ok := money.ParseFloat(amount)
	if !ok {
		return Finding{}, false
	}
	if v < d.Threshold-d.Band || v >= d.Threshold {
		return Finding{}, false
	}
	distance := d.Threshold - v
	return Finding{
		Kind:     KindStructuring,
		Severity: SeverityMedium,
		Description: fmt.Sprintf("amount %s is %.2f below the %.0f reporting threshold",
			amount, distance, d.Threshold),
		Evidence: StructuringEvidence{
			Amount:    amount,
			Threshold: d.Threshold,
			Distance:  distance,
		},
	}, true
}
