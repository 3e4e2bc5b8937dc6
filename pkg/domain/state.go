package domain

import "time"

// SessionStatus defines where the session is in its lifecycle.
type SessionStatus string

const (
	StatusActive   SessionStatus = "active"   // Loop is running
	StatusFinished SessionStatus = "finished" // All requested cycles completed
)

// Condition is one set of independent-variable assignments to be deployed as
// a trial, keyed by variable name.
type Condition map[string]float64

// Trial is one collected record: the condition that was deployed and the
// observation the hosted experiment reported for it. The hosted experiment
// emits observations as flat JSON objects, e.g.
// {"coherence": 0.3, "accuracy": 0.82}.
type Trial struct {
	Condition   Condition          `json:"condition"`
	Observation map[string]float64 `json:"observation"`
	CollectedAt time.Time          `json:"collected_at,omitempty"`
}

// Model is a fitted model artifact produced by a theorist.
type Model struct {
	Kind         string    `json:"kind"`
	Target       string    `json:"target"`
	Features     []string  `json:"features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	RSquared     float64   `json:"r_squared"`
	RMSE         float64   `json:"rmse"`
	TrialCount   int       `json:"trial_count"`
	FittedAt     time.Time `json:"fitted_at,omitempty"`
}

// State is the immutable snapshot of a discovery session.
//
// Steps never mutate a State; they return a Delta which Apply merges into a
// fresh snapshot. Variables are fixed at session start. Trials and Models
// only ever grow.
type State struct {
	// SessionID identifies the session across persistence and inspection.
	SessionID string `json:"session_id"`

	// Cycle counts completed loop iterations, starting at 0.
	Cycle int `json:"cycle"`

	// Variables are the session's variable definitions (immutable).
	Variables VariableSet `json:"variables"`

	// Conditions holds the pending conditions proposed by the
	// experimentalist and not yet consumed by the runner.
	Conditions []Condition `json:"conditions,omitempty"`

	// Trials is the append-only table of collected records.
	Trials []Trial `json:"trials,omitempty"`

	// Models is the append-only list of fitted models. The last entry is
	// the current best account of the data.
	Models []Model `json:"models,omitempty"`

	// History tracks the names of executed steps, in order.
	History []string `json:"history,omitempty"`

	// Status indicates whether the loop is still running.
	Status SessionStatus `json:"status"`

	// UpdatedAt is the time of the last Apply.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewState creates a clean session snapshot.
func NewState(sessionID string, vars VariableSet) *State {
	return &State{
		SessionID: sessionID,
		Variables: vars,
		Status:    StatusActive,
	}
}

// LatestModel returns the most recently fitted model, or false if the
// theorist has not run yet.
func (s *State) LatestModel() (Model, bool) {
	if len(s.Models) == 0 {
		return Model{}, false
	}
	return s.Models[len(s.Models)-1], true
}

// Delta is the partial update a step returns. Apply merges it into a state:
// Conditions replace the pending set when non-nil, Trials and Models are
// appended, Status overrides when set.
type Delta struct {
	Conditions []Condition
	Trials     []Trial
	Models     []Model
	Status     *SessionStatus
}

// Apply merges the delta into the state and returns a new snapshot tagged
// with the step name in History. The receiver is left untouched.
func (s *State) Apply(step string, d Delta) *State {
	next := s.clone()

	if d.Conditions != nil {
		next.Conditions = append([]Condition(nil), d.Conditions...)
	}
	next.Trials = append(next.Trials, d.Trials...)
	next.Models = append(next.Models, d.Models...)
	if d.Status != nil {
		next.Status = *d.Status
	}
	if step != "" {
		next.History = append(next.History, step)
	}
	next.UpdatedAt = time.Now().UTC()

	return next
}

// NextCycle returns a copy with the cycle counter advanced.
func (s *State) NextCycle() *State {
	next := s.clone()
	next.Cycle++
	return next
}

// Clone copies the snapshot so appends on the copy never alias the original
// backing arrays. Stores use it to hand out isolated copies.
func (s *State) Clone() *State {
	return s.clone()
}

func (s *State) clone() *State {
	next := *s
	next.Conditions = append([]Condition(nil), s.Conditions...)
	next.Trials = append([]Trial(nil), s.Trials...)
	next.Models = append([]Model(nil), s.Models...)
	next.History = append([]string(nil), s.History...)
	return &next
}
