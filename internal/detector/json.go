package detector

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON restores the concrete evidence type from the finding's kind,
// so findings survive a round trip through JSON storage.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind        Kind            `json:"kind"`
		Severity    Severity        `json:"severity"`
		Description string          `json:"description"`
		Evidence    json.RawMessage `json:"evidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Kind = raw.Kind
	f.Severity = raw.Severity
	f.Description = raw.Description
	f.Evidence = nil
	if len(raw.Evidence) == 0 || string(raw.Evidence) == "null" {
		return nil
	}

	switch raw.Kind {
	case KindStructuring:
		var ev StructuringEvidence
		if err := json.Unmarshal(raw.Evidence, &ev); err != nil {
			return err
		}
		f.Evidence = ev
	case KindSmurfing:
		var ev SmurfingEvidence
		if err := json.Unmarshal(raw.Evidence, &ev); err != nil {
			return err
		}
		f.Evidence = ev
	case KindCircularFlow:
		var ev CircularFlowEvidence
		if err := json.Unmarshal(raw.Evidence, &ev); err != nil {
			return err
		}
		f.Evidence = ev
	case KindHighVelocity:
		var ev VelocityEvidence
		if err := json.Unmarshal(raw.Evidence, &ev); err != nil {
			return err
		}
		f.Evidence = ev
	default:
		return fmt.Errorf("unknown finding kind %q", raw.Kind)
	}
	return nil
}
