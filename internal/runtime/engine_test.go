package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresearch/autoloop/internal/runtime"
	"github.com/autoresearch/autoloop/pkg/adapters/memory"
	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/ports"
)

func testVars() domain.VariableSet {
	return domain.VariableSet{
		Independent: []domain.Variable{{Name: "coherence", Kind: domain.Independent, Min: 0, Max: 1}},
		Dependent:   []domain.Variable{{Name: "accuracy", Kind: domain.Dependent}},
	}
}

func proposeStep() ports.Step {
	return ports.OnState("propose", func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		return domain.Delta{Conditions: []domain.Condition{{"coherence": 0.5}}}, nil
	})
}

func collectStep() ports.Step {
	return ports.OnState("collect", func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		trials := make([]domain.Trial, 0, len(s.Conditions))
		for _, c := range s.Conditions {
			trials = append(trials, domain.Trial{
				Condition:   c,
				Observation: map[string]float64{"accuracy": c["coherence"]},
			})
		}
		return domain.Delta{Trials: trials}, nil
	})
}

func fitStep() ports.Step {
	return ports.OnState("fit", func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		return domain.Delta{Models: []domain.Model{{Kind: "fake", TrialCount: len(s.Trials)}}}, nil
	})
}

func TestEngine_RunAccumulatesState(t *testing.T) {
	engine := runtime.NewEngine([]ports.Step{proposeStep(), collectStep(), fitStep()})

	initial := domain.NewState("s1", testVars())
	final, err := engine.Run(context.Background(), initial, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, final.Cycle)
	assert.Len(t, final.Trials, 3, "one trial per cycle")
	assert.Len(t, final.Models, 3, "one model per cycle")
	assert.Equal(t, domain.StatusFinished, final.Status)

	// Each model saw the trials of its own and all prior cycles.
	assert.Equal(t, 1, final.Models[0].TrialCount)
	assert.Equal(t, 3, final.Models[2].TrialCount)

	// The initial snapshot stayed untouched.
	assert.Empty(t, initial.Trials)
	assert.Equal(t, 0, initial.Cycle)

	assert.Equal(t, []string{
		"propose", "collect", "fit",
		"propose", "collect", "fit",
		"propose", "collect", "fit",
	}, final.History)
}

func TestEngine_PersistsSnapshots(t *testing.T) {
	store := memory.NewStore()
	engine := runtime.NewEngine(
		[]ports.Step{proposeStep(), collectStep()},
		runtime.WithStore(store),
	)

	_, err := engine.Run(context.Background(), domain.NewState("persisted", testVars()), 2)
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Cycle)
	assert.Equal(t, domain.StatusFinished, loaded.Status)
	assert.Len(t, loaded.Trials, 2)
}

func TestEngine_StepErrorStopsLoop(t *testing.T) {
	boom := errors.New("boom")
	failing := ports.OnState("failing", func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		return domain.Delta{}, boom
	})

	engine := runtime.NewEngine([]ports.Step{proposeStep(), failing, fitStep()})

	final, err := engine.Run(context.Background(), domain.NewState("s1", testVars()), 3)
	require.ErrorIs(t, err, boom)

	// The last good snapshot is returned for inspection.
	require.NotNil(t, final)
	assert.Equal(t, []string{"propose"}, final.History)
}

func TestEngine_Hooks(t *testing.T) {
	var order []string
	hooks := domain.LifecycleHooks{
		OnCycleStart: func(_ context.Context, e *domain.CycleEvent) {
			order = append(order, "cycle_start")
		},
		OnCycleEnd: func(_ context.Context, e *domain.CycleEvent) {
			order = append(order, "cycle_end")
		},
		OnStepStart: func(_ context.Context, e *domain.StepEvent) {
			order = append(order, "start:"+e.Step)
		},
		OnStepEnd: func(_ context.Context, e *domain.StepEvent) {
			order = append(order, "end:"+e.Step)
		},
	}

	engine := runtime.NewEngine(
		[]ports.Step{proposeStep(), collectStep()},
		runtime.WithLifecycleHooks(hooks),
	)

	_, err := engine.Run(context.Background(), domain.NewState("s1", testVars()), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cycle_start",
		"start:propose", "end:propose",
		"start:collect", "end:collect",
		"cycle_end",
	}, order)
}

func TestEngine_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := ports.OnState("cancelling", func(ctx context.Context, s *domain.State) (domain.Delta, error) {
		cancel()
		return domain.Delta{}, nil
	})

	engine := runtime.NewEngine([]ports.Step{cancelling, collectStep()})

	_, err := engine.Run(ctx, domain.NewState("s1", testVars()), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_RejectsBadConfig(t *testing.T) {
	engine := runtime.NewEngine([]ports.Step{proposeStep()})

	_, err := engine.Run(context.Background(), domain.NewState("s1", testVars()), 0)
	assert.Error(t, err)

	empty := runtime.NewEngine(nil)
	_, err = empty.Run(context.Background(), domain.NewState("s1", testVars()), 1)
	assert.Error(t, err)
}
