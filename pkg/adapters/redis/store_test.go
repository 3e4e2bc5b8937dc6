package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresearch/autoloop/pkg/adapters/redis"
	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/ports"
)

func newTestStore(t *testing.T, opts ...redis.Option) *redis.Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewFromClient(client, opts...)
}

func TestRedisStore_Contract(t *testing.T) {
	store := newTestStore(t)
	ports.RunStateStoreContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client, redis.WithPrefix("lab:"))

	vars := domain.VariableSet{
		Independent: []domain.Variable{{Name: "coherence", Min: 0, Max: 1}},
		Dependent:   []domain.Variable{{Name: "accuracy"}},
	}
	require.NoError(t, store.Save(context.Background(), "abc", domain.NewState("abc", vars)))

	assert.True(t, mr.Exists("lab:abc"))
	assert.False(t, mr.Exists("autoloop:session:abc"))
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))

	vars := domain.VariableSet{
		Independent: []domain.Variable{{Name: "coherence", Min: 0, Max: 1}},
		Dependent:   []domain.Variable{{Name: "accuracy"}},
	}
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ephemeral", domain.NewState("ephemeral", vars)))

	// Let miniredis advance past the TTL.
	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "ephemeral")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
