package detector

import (
	"context"
	"fmt"
	"time"
)

// HighVelocity fires when the subject account originates more transactions
// inside the sliding window than the configured rate allows.
type HighVelocity struct {
	Limit  int // max outgoing transactions per window before flagging
	Window time.Duration
}

// NewHighVelocity creates a velocity detector.
func NewHighVelocity(limit int, window time.Duration) *HighVelocity {
	return &HighVelocity{Limit: limit, Window: window}
}

func (d *HighVelocity) Name() string { return "high_velocity" }

func (d *HighVelocity) Detect(_ context.Context, in *Input) ([]Finding, error) {
	cutoff := in.Now.Add(-d.Window)

	count := 0
	for _, tx := range in.Outgoing {
		if !tx.Timestamp.Before(cutoff) {
			count++
		}
	}
	if in.Tx != nil {
		count++
	}

	if count <= d.Limit {
		return nil, nil
	}

	return []Finding{{
		Kind:     KindHighVelocity,
		Severity: SeverityMedium,
		Description: fmt.Sprintf("%d outgoing transactions within %s exceeds the limit of %d",
			count, d.Window, d.Limit),
		Evidence: VelocityEvidence{
			Count:  count,
			Limit:  d.Limit,
			Window: d.Window.String(),
		},
	}}, nil
}
