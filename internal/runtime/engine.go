// Package runtime is the core loop driver. It executes a fixed sequence of
// steps per cycle, merging each step's delta into the immutable session state
// and emitting lifecycle events along the way.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/ports"
)

// Engine runs the closed loop.
type Engine struct {
	steps  []ports.Step
	store  ports.StateStore
	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithStore enables persistence: every snapshot is saved after each step.
func WithStore(store ports.StateStore) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine executing the given steps in order, once per
// cycle.
func NewEngine(steps []ports.Step, opts ...EngineOption) *Engine {
	e := &Engine{
		steps:  steps,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the loop for the given number of cycles starting from initial,
// returning the final snapshot. The initial state is never mutated.
func (e *Engine) Run(ctx context.Context, initial *domain.State, cycles int) (*domain.State, error) {
	if cycles <= 0 {
		return nil, fmt.Errorf("runtime: cycles must be positive, got %d", cycles)
	}
	if len(e.steps) == 0 {
		return nil, fmt.Errorf("runtime: no steps configured")
	}

	state := initial
	for i := 0; i < cycles; i++ {
		e.emitCycle(ctx, domain.EventCycleStart, state)

		var err error
		state, err = e.runCycle(ctx, state)
		if err != nil {
			return state, err
		}

		state = state.NextCycle()
		if err := e.persist(ctx, state); err != nil {
			return state, err
		}

		e.emitCycle(ctx, domain.EventCycleEnd, state)
		e.logger.Info("cycle complete",
			"session_id", state.SessionID,
			"cycle", state.Cycle,
			"trials", len(state.Trials),
			"models", len(state.Models),
		)
	}

	finished := domain.StatusFinished
	state = state.Apply("", domain.Delta{Status: &finished})
	if err := e.persist(ctx, state); err != nil {
		return state, err
	}

	return state, nil
}

func (e *Engine) runCycle(ctx context.Context, state *domain.State) (*domain.State, error) {
	for _, step := range e.steps {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("runtime: loop interrupted: %w", err)
		}

		started := time.Now()
		e.emitStep(ctx, domain.EventStepStart, state, step.Name(), 0, nil)

		delta, err := step.Apply(ctx, state)
		duration := time.Since(started)
		e.emitStep(ctx, domain.EventStepEnd, state, step.Name(), duration, err)

		if err != nil {
			return state, fmt.Errorf("runtime: step %s: %w", step.Name(), err)
		}

		state = state.Apply(step.Name(), delta)
		if err := e.persist(ctx, state); err != nil {
			return state, err
		}

		e.logger.Debug("step applied",
			"session_id", state.SessionID,
			"step", step.Name(),
			"duration", duration,
		)
	}
	return state, nil
}

func (e *Engine) persist(ctx context.Context, state *domain.State) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(ctx, state.SessionID, state); err != nil {
		return fmt.Errorf("runtime: persist session %s: %w", state.SessionID, err)
	}
	return nil
}

func (e *Engine) emitCycle(ctx context.Context, eventType domain.EventType, state *domain.State) {
	hook := e.hooks.OnCycleStart
	if eventType == domain.EventCycleEnd {
		hook = e.hooks.OnCycleEnd
	}
	if hook == nil {
		return
	}
	hook(ctx, &domain.CycleEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now().UTC(),
			Type:      eventType,
			SessionID: state.SessionID,
		},
		Cycle: state.Cycle,
	})
}

func (e *Engine) emitStep(ctx context.Context, eventType domain.EventType, state *domain.State, step string, duration time.Duration, err error) {
	hook := e.hooks.OnStepStart
	if eventType == domain.EventStepEnd {
		hook = e.hooks.OnStepEnd
	}
	if hook == nil {
		return
	}
	event := &domain.StepEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now().UTC(),
			Type:      eventType,
			SessionID: state.SessionID,
		},
		Cycle:    state.Cycle,
		Step:     step,
		Duration: duration,
	}
	if err != nil {
		event.Err = err.Error()
	}
	hook(ctx, event)
}
