// Package autoloop wires experimentalists, experiment runners, and theorists
// into a closed empirical research loop: propose conditions, collect
// observations from real participants, fit a model, repeat. Each step reads
// an immutable state snapshot and returns a delta that is merged into the
// next snapshot, so the full research trajectory stays inspectable and
// persistable at every point.
package autoloop

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/autoresearch/autoloop/internal/runtime"
	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/ports"
)

// Version is the release version, overridable at build time via
// -ldflags "-X github.com/autoresearch/autoloop.Version=...".
var Version = "0.3.0-dev"

// Engine is the high-level entry point for the autoloop library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	experimentalist ports.Experimentalist
	runner          ports.ExperimentRunner
	theorist        ports.Theorist
	store           ports.StateStore
	hooks           domain.LifecycleHooks
	logger          *slog.Logger
	cycles          int

	runtime *runtime.Engine
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithExperimentalist sets the condition-proposal strategy.
func WithExperimentalist(e ports.Experimentalist) Option {
	return func(eng *Engine) {
		eng.experimentalist = e
	}
}

// WithRunner sets the experiment runner.
func WithRunner(r ports.ExperimentRunner) Option {
	return func(eng *Engine) {
		eng.runner = r
	}
}

// WithTheorist sets the model-fitting strategy.
func WithTheorist(t ports.Theorist) Option {
	return func(eng *Engine) {
		eng.theorist = t
	}
}

// WithStore enables durable sessions.
func WithStore(s ports.StateStore) Option {
	return func(eng *Engine) {
		eng.store = s
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(eng *Engine) {
		eng.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) {
		eng.logger = logger
	}
}

// WithCycles sets how many loop iterations Run executes. Default 3.
func WithCycles(n int) Option {
	return func(eng *Engine) {
		eng.cycles = n
	}
}

// New initializes an Engine. An experimentalist, a runner, and a theorist are
// required; everything else has defaults.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{cycles: 3}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.experimentalist == nil {
		return nil, fmt.Errorf("autoloop: an experimentalist is required")
	}
	if eng.runner == nil {
		return nil, fmt.Errorf("autoloop: an experiment runner is required")
	}
	if eng.theorist == nil {
		return nil, fmt.Errorf("autoloop: a theorist is required")
	}
	if eng.cycles <= 0 {
		return nil, fmt.Errorf("autoloop: cycles must be positive, got %d", eng.cycles)
	}
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	if eng.store != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithStore(eng.store))
	}

	eng.runtime = runtime.NewEngine(eng.steps(), runtimeOpts...)

	return eng, nil
}

// steps adapts the three roles into the loop's step sequence.
func (eng *Engine) steps() []ports.Step {
	propose := ports.OnState(eng.experimentalist.Name(), func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		conditions, err := eng.experimentalist.Propose(ctx, s)
		if err != nil {
			return domain.Delta{}, err
		}
		if len(conditions) == 0 {
			return domain.Delta{}, domain.ErrNoConditions
		}
		return domain.Delta{Conditions: conditions}, nil
	})

	collect := ports.OnState(eng.runner.Name(), func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		if len(s.Conditions) == 0 {
			return domain.Delta{}, domain.ErrNoConditions
		}
		trials, err := eng.runner.Run(ctx, s.Conditions)
		if err != nil {
			return domain.Delta{}, err
		}
		if len(trials) == 0 {
			return domain.Delta{}, domain.ErrNoObservations
		}
		return domain.Delta{Trials: trials}, nil
	})

	fit := ports.OnState(eng.theorist.Name(), func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		model, err := eng.theorist.Fit(ctx, s)
		if err != nil {
			return domain.Delta{}, err
		}
		return domain.Delta{Models: []domain.Model{model}}, nil
	})

	return []ports.Step{propose, collect, fit}
}

// Run executes the configured number of cycles for a fresh session and
// returns the final snapshot. An empty sessionID is replaced with a random
// one.
func (eng *Engine) Run(ctx context.Context, sessionID string, vars domain.VariableSet) (*domain.State, error) {
	if err := vars.Validate(); err != nil {
		return nil, fmt.Errorf("autoloop: %w", err)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	eng.logger.Info("session started", "session_id", sessionID, "cycles", eng.cycles)
	return eng.runtime.Run(ctx, domain.NewState(sessionID, vars), eng.cycles)
}

// Resume loads a stored session and runs the configured number of additional
// cycles on top of it. Requires a store.
func (eng *Engine) Resume(ctx context.Context, sessionID string) (*domain.State, error) {
	if eng.store == nil {
		return nil, fmt.Errorf("autoloop: resume requires a store")
	}

	state, err := eng.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	active := domain.StatusActive
	state = state.Apply("", domain.Delta{Status: &active})

	eng.logger.Info("session resumed",
		"session_id", sessionID,
		"cycle", state.Cycle,
		"trials", len(state.Trials),
	)
	return eng.runtime.Run(ctx, state, eng.cycles)
}
