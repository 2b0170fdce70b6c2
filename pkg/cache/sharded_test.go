package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCountingShardGenerator returns a shard generator whose shards share one retrieval counter.
func newCountingShardGenerator(capacity int, mode SyncMode, calls *atomic.Int32) func() *Cache[string, string] {
	return func() *Cache[string, string] {
		return New(capacity, countingRetriever(calls), mode, nil /*evictionCallback*/)
	}
}

func TestSharded_ReadThrough(t *testing.T) {
	var calls atomic.Int32
	sharded := NewSharded(newCountingShardGenerator(8, SyncPerKey, &calls), 10 /*shardCount*/)
	ctx := context.Background()

	t.Run("Get missing then cached key", func(t *testing.T) {
		got, err := sharded.Get(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "value-hello", got)
		assert.Equal(t, int32(1), calls.Load())

		got, err = sharded.Get(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "value-hello", got)
		assert.Equal(t, int32(1), calls.Load(), "A hit must not invoke the retriever again")
	})
}

func TestSharded_KeyTypes(t *testing.T) {
	type structKey struct {
		Name string
		Age  int
	}
	ctx := context.Background()

	t.Run("int key", func(t *testing.T) {
		sharded := NewSharded(func() *Cache[int, int] {
			return New(8, func(ctx context.Context, key int) (int, error) { return key * 2, nil },
				SyncPerKey, nil /*evictionCallback*/)
		}, 8 /*shardCount*/)
		got, err := sharded.Get(ctx, 21)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})

	t.Run("struct key", func(t *testing.T) {
		sharded := NewSharded(func() *Cache[structKey, string] {
			return New(8, func(ctx context.Context, key structKey) (string, error) { return key.Name, nil },
				SyncPerKey, nil /*evictionCallback*/)
		}, 8 /*shardCount*/)
		got, err := sharded.Get(ctx, structKey{Name: "Go", Age: 15})
		require.NoError(t, err)
		assert.Equal(t, "Go", got)
	})

	t.Run("bool key", func(t *testing.T) {
		sharded := NewSharded(func() *Cache[bool, string] {
			return New(8, func(ctx context.Context, key bool) (string, error) {
				return fmt.Sprintf("%t", key), nil
			}, SyncPerKey, nil /*evictionCallback*/)
		}, 8 /*shardCount*/)
		got, err := sharded.Get(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, "true", got)
	})
}

func TestSharded_Keys(t *testing.T) {
	var calls atomic.Int32
	sharded := NewSharded(newCountingShardGenerator(8, SyncPerKey, &calls), 4 /*shardCount*/)
	ctx := context.Background()

	expectedKeys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, key := range expectedKeys {
		_, err := sharded.Get(ctx, key)
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, expectedKeys, sharded.Keys())
	assert.Equal(t, len(expectedKeys), sharded.Len())
}

func TestSharded_Purge(t *testing.T) {
	var calls atomic.Int32
	sharded := NewSharded(newCountingShardGenerator(8, SyncPerKey, &calls), 5 /*shardCount*/)
	ctx := context.Background()

	keysToAdd := []string{"1", "10", "100", "1000"}
	for _, key := range keysToAdd {
		_, err := sharded.Get(ctx, key)
		require.NoError(t, err)
	}
	require.Equal(t, len(keysToAdd), sharded.Len(), "Incorrect number of keys before purge")

	sharded.Purge()
	assert.Zero(t, sharded.Len(), "Expected the cache to be empty after purge")
	_, err := sharded.Get(ctx, keysToAdd[0])
	require.NoError(t, err)
	assert.Equal(t, int32(len(keysToAdd)+1), calls.Load(), "Purged keys must cause a fresh retrieval")
}

// TestSharded_Distribution verifies that keys are distributed across multiple shards.
func TestSharded_Distribution(t *testing.T) {
	shardCount := 10
	var calls atomic.Int32
	// Large per-shard capacity so distribution is observable without evictions.
	sharded := NewSharded(newCountingShardGenerator(100_000, SyncPerKey, &calls), shardCount)
	ctx := context.Background()

	// keyCount should be large enough compared to shardCount so it becomes virtually impossible to
	// have a shard with less than 50% of `keyCount/shardCount` keys.
	keyCount := 100_000
	for i := range keyCount {
		_, err := sharded.Get(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
	}
	for _, shard := range sharded.shards {
		assert.True(t, shard.Len() > keyCount/(2*shardCount),
			"Expected keys in each shard to be at least half the keys compared to the uniform distribution.")
	}
}

func TestSharded_SerialModeFallsBackToSingleShard(t *testing.T) {
	var calls atomic.Int32
	sharded := NewSharded(newCountingShardGenerator(8, SyncSerial, &calls), 4 /*shardCount*/)
	assert.Len(t, sharded.shards, 1, "Serial mode must collapse to a single shard")

	got, err := sharded.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "value-k", got)
}
