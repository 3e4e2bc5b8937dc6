package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresearch/autoloop/pkg/domain"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore
// implementation adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	vars := domain.VariableSet{
		Independent: []domain.Variable{{Name: "coherence", Kind: domain.Independent, Min: 0, Max: 1}},
		Dependent:   []domain.Variable{{Name: "accuracy", Kind: domain.Dependent}},
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(sessionID, vars)
		state = state.Apply("seed", domain.Delta{
			Conditions: []domain.Condition{{"coherence": 0.3}},
			Trials:     []domain.Trial{{Condition: domain.Condition{"coherence": 0.3}, Observation: map[string]float64{"accuracy": 0.8}}},
		})

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.SessionID, loaded.SessionID)
		assert.Equal(t, []string{"seed"}, loaded.History)
		require.Len(t, loaded.Trials, 1)
		assert.Equal(t, 0.8, loaded.Trials[0].Observation["accuracy"])
		assert.Equal(t, "coherence", loaded.Variables.Independent[0].Name)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Isolation", func(t *testing.T) {
		state := domain.NewState(sessionID, vars)
		require.NoError(t, store.Save(ctx, sessionID, state))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)

		// Mutating the loaded copy must not leak back into the store.
		loaded.History = append(loaded.History, "rogue")
		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, again.History)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewState(sessionID, vars))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewState(id1, vars))
		_ = store.Save(ctx, id2, domain.NewState(id2, vars))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
