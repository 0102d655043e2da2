package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rfontaine/sentra/internal/transaction"
)

// CircularFlow fires when funds leave the subject account and return to it
// through a chain of intermediaries (A to B to ... back to A) within the
// recency window, the classic layering shape.
type CircularFlow struct {
	Window   time.Duration
	MaxDepth int // longest cycle considered, in edges
}

// minCycleNodes is the smallest cycle reported: A, B, C, back to A.
// Two-party back-and-forth is ordinary repayment, not layering.
const minCycleNodes = 3

// NewCircularFlow creates a circular-flow detector.
func NewCircularFlow(window time.Duration, maxDepth int) *CircularFlow {
	if maxDepth < minCycleNodes {
		maxDepth = minCycleNodes
	}
	return &CircularFlow{Window: window, MaxDepth: maxDepth}
}

func (d *CircularFlow) Name() string { return "circular_flow" }

func (d *CircularFlow) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	cutoff := in.Now.Add(-d.Window)

	// Adjacency over recent edges. Neighbor lists are sorted so the DFS is
	// deterministic regardless of store iteration order.
	adj := make(map[string][]string)
	edge := func(tx *transaction.Transaction) {
		if tx.Timestamp.Before(cutoff) || tx.SourceAccountID == tx.TargetAccountID {
			return
		}
		adj[tx.SourceAccountID] = append(adj[tx.SourceAccountID], tx.TargetAccountID)
	}
	for _, tx := range in.Recent {
		edge(tx)
	}
	if in.Tx != nil {
		cp := *in.Tx
		cp.Timestamp = in.Now
		edge(&cp)
	}
	for src := range adj {
		sort.Strings(adj[src])
		adj[src] = dedupe(adj[src])
	}

	path := d.findCycle(ctx, adj, in.AccountID)
	if path == nil {
		return nil, nil
	}

	return []Finding{{
		Kind:     KindCircularFlow,
		Severity: SeverityCritical,
		Description: fmt.Sprintf("funds returned to origin through %d intermediaries within %s",
			len(path)-2, d.Window),
		Evidence: CircularFlowEvidence{
			Path:   path,
			Window: d.Window.String(),
		},
	}}, nil
}

// findCycle runs a bounded-depth DFS from start, returning the first cycle
// path that begins and ends at start with at least minCycleNodes distinct
// nodes, or nil.
func (d *CircularFlow) findCycle(ctx context.Context, adj map[string][]string, start string) []string {
	visited := map[string]bool{}
	path := []string{start}

	var dfs func(current string, depth int) []string
	dfs = func(current string, depth int) []string {
		if ctx.Err() != nil || depth > d.MaxDepth {
			return nil
		}
		for _, next := range adj[current] {
			if next == start {
				if len(path) >= minCycleNodes {
					result := make([]string, len(path)+1)
					copy(result, path)
					result[len(path)] = start
					return result
				}
				continue
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			path = append(path, next)
			if cycle := dfs(next, depth+1); cycle != nil {
				return cycle
			}
			path = path[:len(path)-1]
			visited[next] = false
		}
		return nil
	}

	visited[start] = true
	return dfs(start, 1)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
