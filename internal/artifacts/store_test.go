package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func storesUnderTest(t *testing.T) map[string]Store {
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "models"))
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  NewRedisStore(newFakeRedis(), "test"),
	}
}

func TestStores_WriteOnce(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, name, store.Backend())

			_, err := store.Get(ctx, KeyScaler)
			assert.ErrorIs(t, err, ErrArtifactNotFound)

			require.NoError(t, store.Put(ctx, KeyScaler, []byte(`{"columns":["a"]}`)))
			blob, err := store.Get(ctx, KeyScaler)
			require.NoError(t, err)
			assert.JSONEq(t, `{"columns":["a"]}`, string(blob))

			err = store.Put(ctx, KeyScaler, []byte(`{"columns":["b"]}`))
			assert.ErrorIs(t, err, ErrArtifactExists)

			blob, err = store.Get(ctx, KeyScaler)
			require.NoError(t, err)
			assert.JSONEq(t, `{"columns":["a"]}`, string(blob), "existing artifact must not change")
		})
	}
}

func TestStores_RejectInvalidKeys(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Put(ctx, "../escape", []byte("{}")))
			assert.Error(t, store.Put(ctx, "", []byte("{}")))
		})
	}
}

func TestMemoryStore_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, KeyTeamEncoder, []byte(`["A","B"]`)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blob, err := store.Get(ctx, KeyTeamEncoder)
			assert.NoError(t, err)
			assert.Equal(t, `["A","B"]`, string(blob))
		}()
	}
	wg.Wait()
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), KeyPositionEncoder, []byte(`{}`)))
	_, err = os.Stat(filepath.Join(dir, "le_position.json"))
	assert.NoError(t, err)
}

func TestRedisStore_PrefixAndErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store := NewRedisStore(client, "match-features")

	require.NoError(t, store.Put(ctx, KeyFeatureSchema, []byte(`{}`)))
	_, ok := client.data["match-features:artifact:feature_schema"]
	assert.True(t, ok)

	client.err = errors.New("connection refused")
	err := store.Put(ctx, KeyTeamEncoder, []byte(`{}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrArtifactExists)

	_, err = store.Get(ctx, KeyFeatureSchema)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrArtifactNotFound)
}
