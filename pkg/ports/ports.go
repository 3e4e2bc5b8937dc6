package ports

import (
	"context"

	"github.com/autoresearch/autoloop/pkg/domain"
)

// Experimentalist proposes the next experimental conditions from the current
// state. Implementations read the variable set and (optionally) prior trials
// and models; they never mutate the state.
type Experimentalist interface {
	// Name identifies the strategy in history and logs.
	Name() string

	// Propose returns the conditions to deploy in the next cycle.
	Propose(ctx context.Context, state *domain.State) ([]domain.Condition, error)
}

// ExperimentRunner deploys conditions to real participants and blocks until
// observations were collected (or ctx is cancelled). A runner may legally
// return fewer trials than conditions: participants abandon sessions.
type ExperimentRunner interface {
	Name() string

	Run(ctx context.Context, conditions []domain.Condition) ([]domain.Trial, error)
}

// Theorist fits a model to the trials accumulated in the state.
type Theorist interface {
	Name() string

	Fit(ctx context.Context, state *domain.State) (domain.Model, error)
}

// Step is the unit the runtime executes: read a snapshot, return a delta.
// The three roles above are adapted into Steps by the engine, and OnState
// lets plain functions participate in the loop as well.
type Step interface {
	Name() string

	Apply(ctx context.Context, state *domain.State) (domain.Delta, error)
}

// StepFunc is a plain state-transforming function.
type StepFunc func(ctx context.Context, state *domain.State) (domain.Delta, error)

// OnState wraps a plain function into a named Step. This is the glue that
// turns ordinary functions into loop participants: the runtime calls the
// function with the current snapshot and merges the returned delta.
func OnState(name string, fn StepFunc) Step {
	return funcStep{name: name, fn: fn}
}

type funcStep struct {
	name string
	fn   StepFunc
}

func (s funcStep) Name() string { return s.name }

func (s funcStep) Apply(ctx context.Context, state *domain.State) (domain.Delta, error) {
	return s.fn(ctx, state)
}
