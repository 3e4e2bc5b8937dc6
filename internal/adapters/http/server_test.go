package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/autoresearch/autoloop/internal/adapters/http"
	"github.com/autoresearch/autoloop/internal/logging"
	"github.com/autoresearch/autoloop/pkg/adapters/memory"
	"github.com/autoresearch/autoloop/pkg/domain"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()

	vars := domain.VariableSet{
		Independent: []domain.Variable{{Name: "coherence", Kind: domain.Independent, Min: 0, Max: 1}},
		Dependent:   []domain.Variable{{Name: "accuracy", Kind: domain.Dependent}},
	}
	state := domain.NewState("sess-1", vars)
	state = state.Apply("linear", domain.Delta{
		Models: []domain.Model{{Kind: "linear", Target: "accuracy", Intercept: 0.5, Coefficients: []float64{0.4}}},
	})
	require.NoError(t, store.Save(context.Background(), "sess-1", state))
	return store
}

func TestServer_Sessions(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"sess-1"}, body.Sessions)
}

func TestServer_GetSession(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions/sess-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state domain.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "sess-1", state.SessionID)
	assert.Len(t, state.Models, 1)
}

func TestServer_GetSession_NotFound(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_GetModel(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions/sess-1/model")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var model domain.Model
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&model))
	assert.Equal(t, "linear", model.Kind)
	assert.InDelta(t, 0.4, model.Coefficients[0], 1e-12)
}

func TestServer_GetDiff_InitialLoad(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions/sess-1/diff")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var diff domain.StateDiff
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&diff))
	assert.Equal(t, "sess-1", diff.SessionID)
	require.NotNil(t, diff.Status)
	assert.Equal(t, domain.StatusActive, *diff.Status)
	require.Len(t, diff.ModelsAppended, 1)
	assert.Equal(t, "linear", diff.ModelsAppended[0].Kind)
	assert.Equal(t, []string{"linear"}, diff.HistoryAppended)
}

func TestServer_GetDiff_Incremental(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	// Client holds the pre-fit snapshot: no models, no history yet.
	resp, err := http.Get(srv.URL + "/sessions/sess-1/diff?cycle=0&models=0&history=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var diff domain.StateDiff
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&diff))
	assert.Nil(t, diff.Cycle)
	assert.Nil(t, diff.Status)
	assert.Empty(t, diff.TrialsAppended)
	require.Len(t, diff.ModelsAppended, 1)
	assert.Equal(t, []string{"linear"}, diff.HistoryAppended)
}

func TestServer_GetDiff_UpToDate(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions/sess-1/diff?cycle=0&trials=0&models=1&history=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_GetDiff_BadParameter(t *testing.T) {
	handler := httpadapter.NewHandler(seedStore(t), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions/sess-1/diff?models=many")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	handler := httpadapter.NewHandler(memory.NewStore(), logging.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
