package domain

// StateDiff summarizes the changes between two snapshots. It is designed to
// be serialized to JSON for partial updates on inspection clients: Trials and
// Models are append-only, so only the appended suffix is carried.
type StateDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	// Cycle changed?
	Cycle *int `json:"cycle,omitempty"`

	// Status changed?
	Status *SessionStatus `json:"status,omitempty"`

	// Conditions is the full pending set whenever it was replaced.
	Conditions []Condition `json:"conditions,omitempty"`

	// TrialsAppended contains new trials only.
	TrialsAppended []Trial `json:"trials_appended,omitempty"`

	// ModelsAppended contains new models only.
	ModelsAppended []Model `json:"models_appended,omitempty"`

	// HistoryAppended contains new step names only.
	HistoryAppended []string `json:"history_appended,omitempty"`
}

// Diff calculates the difference between oldState and newState. If oldState
// is nil the diff represents the entire newState (initial load). Returns nil
// when nothing changed.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{SessionID: newState.SessionID}

	if oldState == nil || oldState.Cycle != newState.Cycle {
		diff.Cycle = &newState.Cycle
	}
	if oldState == nil || oldState.Status != newState.Status {
		diff.Status = &newState.Status
	}
	if oldState == nil || !sameConditions(oldState.Conditions, newState.Conditions) {
		diff.Conditions = newState.Conditions
	}

	diff.TrialsAppended = appendedSuffix(lenOrZero(oldState, func(s *State) int { return len(s.Trials) }), newState.Trials)
	diff.ModelsAppended = appendedSuffix(lenOrZero(oldState, func(s *State) int { return len(s.Models) }), newState.Models)
	diff.HistoryAppended = appendedSuffix(lenOrZero(oldState, func(s *State) int { return len(s.History) }), newState.History)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Cycle == nil &&
		d.Status == nil &&
		d.Conditions == nil &&
		len(d.TrialsAppended) == 0 &&
		len(d.ModelsAppended) == 0 &&
		len(d.HistoryAppended) == 0
}

func lenOrZero(s *State, f func(*State) int) int {
	if s == nil {
		return 0
	}
	return f(s)
}

// appendedSuffix assumes append-only growth; a shrink means a rewrite, which
// the loop never produces, so it is reported as no change.
func appendedSuffix[T any](oldLen int, items []T) []T {
	if len(items) <= oldLen {
		return nil
	}
	return items[oldLen:]
}

func sameConditions(a, b []Condition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for k, v := range a[i] {
			other, ok := b[i][k]
			if !ok || other != v {
				return false
			}
		}
	}
	return true
}
