// Package scoring calls the external ML model that assigns a laundering
// probability to a transaction.
//
// The model sits outside the request path's latency budget, so every call
// runs under a hard timeout and behind a circuit breaker. When the model is
// slow, down, or tripped, callers fall back to rule-only assessment; the
// platform degrades to fewer signals, never to an outage.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rfontaine/sentra/internal/circuitbreaker"
)

// ErrUnavailable is returned when the model cannot produce a probability in
// time. Callers should proceed rule-only.
var ErrUnavailable = errors.New("scoring service unavailable")

// Features is the model input for one evaluation.
type Features struct {
	AccountID        string  `json:"accountId"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	HourOfDay        int     `json:"hourOfDay"`
	OutgoingCount24h int     `json:"outgoingCount24h"`
	OutgoingTotal24h float64 `json:"outgoingTotal24h"`
	AccountRiskScore float64 `json:"accountRiskScore"`
}

// Scorer produces a laundering probability in [0, 1].
type Scorer interface {
	Score(ctx context.Context, f Features) (float64, error)
}

const breakerKey = "scoring"

// HTTPScorer calls a model served over HTTP.
type HTTPScorer struct {
	url     string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewHTTPScorer creates a scorer for the model at url. Pass timeout=0 to
// use 500ms.
func NewHTTPScorer(url string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &HTTPScorer{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

type scoreResponse struct {
	Probability float64 `json:"probability"`
}

// Score posts the features and returns the model probability. Any failure
// mode, including timeout and a tripped breaker, surfaces as ErrUnavailable.
func (s *HTTPScorer) Score(ctx context.Context, f Features) (float64, error) {
	if !s.breaker.Allow(breakerKey) {
		return 0, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure(breakerKey)
		return 0, ErrUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		s.breaker.RecordFailure(breakerKey)
		return 0, ErrUnavailable
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.breaker.RecordFailure(breakerKey)
		return 0, ErrUnavailable
	}
	if out.Probability < 0 || out.Probability > 1 {
		s.breaker.RecordFailure(breakerKey)
		return 0, ErrUnavailable
	}

	s.breaker.RecordSuccess(breakerKey)
	return out.Probability, nil
}

// StaticScorer returns a fixed probability. Used when no model endpoint is
// configured and in tests.
type StaticScorer struct {
	Probability float64
	Err         error
}

func (s *StaticScorer) Score(ctx context.Context, f Features) (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Probability, nil
}
