package firebase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresearch/autoloop/pkg/adapters/firebase"
	"github.com/autoresearch/autoloop/pkg/domain"
)

// fakeFirestore implements just enough of the Firestore REST surface for the
// client: per-collection document maps with PATCH/GET/DELETE and list.
type fakeFirestore struct {
	mu   sync.Mutex
	docs map[string]map[string]map[string]any // collection -> id -> fields
}

func newFakeFirestore() *fakeFirestore {
	return &fakeFirestore{docs: make(map[string]map[string]map[string]any)}
}

func (f *fakeFirestore) set(collection, id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	f.docs[collection][id] = fields
}

func (f *fakeFirestore) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const marker = "/documents/"
		i := strings.Index(r.URL.Path, marker)
		require.GreaterOrEqual(t, i, 0, "unexpected path %s", r.URL.Path)
		rest := r.URL.Path[i+len(marker):]
		parts := strings.SplitN(rest, "/", 2)

		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			// List collection.
			type respDoc struct {
				Name   string         `json:"name"`
				Fields map[string]any `json:"fields"`
			}
			var out struct {
				Documents []respDoc `json:"documents"`
			}
			for id, fields := range f.docs[parts[0]] {
				out.Documents = append(out.Documents, respDoc{
					Name:   "projects/test/databases/(default)/documents/" + parts[0] + "/" + id,
					Fields: fields,
				})
			}
			_ = json.NewEncoder(w).Encode(out)

		case len(parts) == 2 && r.Method == http.MethodPatch:
			var doc struct {
				Fields map[string]any `json:"fields"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))

			if f.docs[parts[0]] == nil {
				f.docs[parts[0]] = make(map[string]map[string]any)
			}
			if mask := r.URL.Query()["updateMask.fieldPaths"]; len(mask) > 0 {
				existing := f.docs[parts[0]][parts[1]]
				for _, field := range mask {
					existing[field] = doc.Fields[field]
				}
			} else {
				f.docs[parts[0]][parts[1]] = doc.Fields
			}
			_ = json.NewEncoder(w).Encode(doc)

		case len(parts) == 2 && r.Method == http.MethodDelete:
			delete(f.docs[parts[0]], parts[1])
			w.Write([]byte("{}"))

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func newTestClient(t *testing.T) (*firebase.Client, *fakeFirestore) {
	t.Helper()
	fake := newFakeFirestore()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client, err := firebase.New("test", "key-123", firebase.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return client, fake
}

func stringValue(s string) map[string]any {
	return map[string]any{"stringValue": s}
}

func TestClient_SendConditions(t *testing.T) {
	client, fake := newTestClient(t)

	// A document from a previous cycle must be cleared.
	fake.set("autora_observations", "0000", map[string]any{"data": stringValue(`{"accuracy":0.1}`)})

	conditions := []domain.Condition{{"coherence": 0.3}, {"coherence": 0.7}}
	require.NoError(t, client.SendConditions(context.Background(), conditions))

	require.Len(t, fake.docs["autora_conditions"], 2)
	assert.Empty(t, fake.docs["autora_observations"], "stale observations cleared")

	doc := fake.docs["autora_conditions"]["0000"]
	status := doc["status"].(map[string]any)["stringValue"]
	assert.Equal(t, "available", status)

	raw := doc["condition"].(map[string]any)["stringValue"].(string)
	var decoded domain.Condition
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, 0.3, decoded["coherence"])
}

func TestClient_SendConditions_Empty(t *testing.T) {
	client, _ := newTestClient(t)
	err := client.SendConditions(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoConditions)
}

func TestClient_CheckStatus(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SendConditions(ctx, []domain.Condition{{"coherence": 0.3}, {"coherence": 0.7}}))

	status, err := client.CheckStatus(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, firebase.StatusAvailable, status)

	// Both conditions claimed by participants: unavailable.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	fake.set("autora_conditions", "0000", map[string]any{"status": stringValue("running"), "started_at": map[string]any{"timestampValue": now}})
	fake.set("autora_conditions", "0001", map[string]any{"status": stringValue("running"), "started_at": map[string]any{"timestampValue": now}})

	status, err = client.CheckStatus(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, firebase.StatusUnavailable, status)

	// Everything finished.
	fake.set("autora_conditions", "0000", map[string]any{"status": stringValue("finished")})
	fake.set("autora_conditions", "0001", map[string]any{"status": stringValue("finished")})

	status, err = client.CheckStatus(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, firebase.StatusFinished, status)
}

func TestClient_CheckStatus_ReclaimsAbandoned(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SendConditions(ctx, []domain.Condition{{"coherence": 0.3}}))

	stale := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339Nano)
	fake.set("autora_conditions", "0000", map[string]any{
		"status":     stringValue("running"),
		"started_at": map[string]any{"timestampValue": stale},
	})

	status, err := client.CheckStatus(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, firebase.StatusAvailable, status)

	reset := fake.docs["autora_conditions"]["0000"]["status"].(map[string]any)["stringValue"]
	assert.Equal(t, "available", reset, "abandoned condition reset in firestore")
}

func TestClient_Observations(t *testing.T) {
	client, fake := newTestClient(t)

	fake.set("autora_observations", "0001", map[string]any{"data": stringValue(`{"coherence":0.7,"accuracy":0.92}`)})
	fake.set("autora_observations", "0000", map[string]any{"data": stringValue(`{"coherence":0.3,"accuracy":0.81}`)})

	obs, err := client.Observations(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 0.81, obs[0]["accuracy"])
	assert.Equal(t, 0.92, obs[1]["accuracy"])
}

func TestClient_RequiresProjectID(t *testing.T) {
	_, err := firebase.New("", "key")
	assert.Error(t, err)
}

func TestClient_SendsAPIKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		fmt.Fprint(w, "{}")
	}))
	t.Cleanup(srv.Close)

	client, err := firebase.New("test", "secret-key", firebase.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Observations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret-key", gotKey)
}
