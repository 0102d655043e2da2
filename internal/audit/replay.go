package audit

import (
	"encoding/json"
	"fmt"

	"github.com/rfontaine/sentra/internal/account"
)

// ReplayState folds an account's entries, oldest first, into its current
// state. It validates every recorded transition against the state machine,
// so a corrupted or reordered log surfaces as an error instead of a
// plausible wrong answer.
func ReplayState(entries []*Entry) (account.State, error) {
	if len(entries) == 0 {
		return "", ErrNotFound
	}
	if entries[0].Event != EventAccountCreated {
		return "", fmt.Errorf("log does not begin with %s", EventAccountCreated)
	}

	state := account.StateActive
	for _, e := range entries[1:] {
		if e.Event != EventStateChanged {
			continue
		}
		var d StateChangeDetails
		if err := json.Unmarshal(e.Details, &d); err != nil {
			return "", fmt.Errorf("entry %s: malformed state change details: %w", e.ID, err)
		}
		if account.State(d.From) != state {
			return "", fmt.Errorf("entry %s: recorded transition from %s but replayed state is %s", e.ID, d.From, state)
		}
		if err := account.ValidateTransition(state, account.State(d.To)); err != nil {
			return "", fmt.Errorf("entry %s: illegal transition %s to %s", e.ID, d.From, d.To)
		}
		state = account.State(d.To)
	}
	return state, nil
}
