package scoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPScorer_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probability": 0.82}`))
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, time.Second)
	p, err := s.Score(context.Background(), Features{AccountID: "acct_1", Amount: 9500})
	if err != nil {
		t.Fatal(err)
	}
	if p != 0.82 {
		t.Errorf("probability = %v, want 0.82", p)
	}
}

func TestHTTPScorer_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"probability": 0.5}`))
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, 20*time.Millisecond)
	if _, err := s.Score(context.Background(), Features{}); err != ErrUnavailable {
		t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
	}
}

func TestHTTPScorer_BadResponses(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"garbage body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"out of range": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"probability": 1.7}`))
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			s := NewHTTPScorer(srv.URL, time.Second)
			if _, err := s.Score(context.Background(), Features{}); err != ErrUnavailable {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestHTTPScorer_BreakerTripsAfterRepeatedFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, time.Second)
	for i := 0; i < 10; i++ {
		_, _ = s.Score(context.Background(), Features{})
	}
	if calls >= 10 {
		t.Errorf("breaker should have stopped calls after repeated failures, server saw %d", calls)
	}
}

func TestStaticScorer(t *testing.T) {
	s := &StaticScorer{Probability: 0.3}
	p, err := s.Score(context.Background(), Features{})
	if err != nil || p != 0.3 {
		t.Fatalf("got %v, %v", p, err)
	}

	s = &StaticScorer{Err: ErrUnavailable}
	if _, err := s.Score(context.Background(), Features{}); err != ErrUnavailable {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
