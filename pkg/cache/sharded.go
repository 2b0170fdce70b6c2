// This module implements cache sharding which distributes keys uniformly across cache shards. Each
// shard has its own store mutex and key lock table, so goroutines loading unrelated keys only
// contend on the shard their key belongs to. Note that sharding is incompatible with SyncSerial:
// per-shard serialization would let retrievals on different shards overlap, which is exactly what
// the serial mode promises never happens.

package cache

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/pomelo/pkg/utils"
)

// Sharded is a cache layer that distributes keys across multiple underlying Cache instances
// (shards) to reduce lock contention in high-traffic scenarios.
type Sharded[K comparable, V any] struct {
	shards []*Cache[K, V]
	hash   func(key K) uint64 // Helps choose the shards index.
}

var _ Layer[int, int] = (*Sharded[int, int])(nil)

// NewSharded is the constructor for Sharded. It takes a cacheGenerator function, which is
// responsible for creating individual shard instances, and the desired number of shards
// (shardCount). Each shard gets the full capacity the generator configures, so the total bound is
// shardCount times the per-shard capacity.
func NewSharded[K comparable, V any](cacheGenerator func() *Cache[K, V], shardCount int) *Sharded[K, V] {
	// Ensure there is at least one shard.
	if shardCount <= 0 {
		utils.RaiseInvariant("shard", "non_positive_shard_count",
			"Invalid shard count has been given to sharded cache.", "shardCount", shardCount)
		shardCount = 1
	}
	shardedCache := &Sharded[K, V]{shards: make([]*Cache[K, V], shardCount)}
	// Initialize shard instances.
	for i := range shardCount {
		shardedCache.shards[i] = cacheGenerator()
	}
	if shardCount > 1 && shardedCache.shards[0].Mode() == SyncSerial {
		utils.RaiseInvariant("shard", "serial_mode_sharded",
			"Serial sync mode cannot be sharded; falling back to a single shard.",
			"shardCount", shardCount)
		shardedCache.shards = shardedCache.shards[:1]
	}
	// Initialize the hash function once to use in getShard.
	switch any(*new(K)).(type) {
	case string:
		shardedCache.hash = func(key K) uint64 {
			return xxhash.Sum64String(any(key).(string))
		}
	case int:
		shardedCache.hash = func(key K) uint64 {
			var b [8]byte
			// Since int's size is architecture-dependent, cast it to a fixed-size type before hashing.
			binary.LittleEndian.PutUint64(b[:], uint64(any(key).(int)))
			return xxhash.Sum64(b[:])
		}
	case uint:
		shardedCache.hash = func(key K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(any(key).(uint)))
			return xxhash.Sum64(b[:])
		}
	case int32:
		shardedCache.hash = func(key K) uint64 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(any(key).(int32)))
			return xxhash.Sum64(b[:])
		}
	case uint32:
		shardedCache.hash = func(key K) uint64 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], any(key).(uint32))
			return xxhash.Sum64(b[:])
		}
	case int64:
		shardedCache.hash = func(key K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(any(key).(int64)))
			return xxhash.Sum64(b[:])
		}
	case uint64:
		shardedCache.hash = func(key K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], any(key).(uint64))
			return xxhash.Sum64(b[:])
		}
	case bool:
		shardedCache.hash = func(key K) uint64 {
			// For booleans, hash a single byte (1 for true, 0 for false).
			if any(key).(bool) {
				return xxhash.Sum64([]byte{1})
			} else {
				return xxhash.Sum64([]byte{0})
			}
		}
	default:
		shardedCache.hash = func(key K) uint64 {
			// As a fallback for other types (like structs), use fmt.Sprintf. This is less
			// performant but works for any type that can be printed.
			return xxhash.Sum64String(fmt.Sprintf("%#v", key))
		}
	}
	return shardedCache
}

// getShard determines which shard a given key belongs to. It does this by hashing the key and using
// the modulo operator to map the hash value to a shard index.
func (c *Sharded[K, V]) getShard(key K) *Cache[K, V] {
	return c.shards[c.hash(key)%uint64(len(c.shards))]
}

// Get finds the appropriate shard for the key and retrieves the value through it.
func (c *Sharded[K, V]) Get(ctx context.Context, key K) (V, error) {
	return c.getShard(key).Get(ctx, key)
}

// Len sums the entry counts of all shards. The result is momentarily consistent.
func (c *Sharded[K, V]) Len() int {
	total := 0
	for _, shard := range c.shards {
		total += shard.Len()
	}
	return total
}

// Keys aggregates the keys from all shards into a single slice. This can be a resource-intensive
// operation, as it requires iterating over every shard and collecting its keys.
func (c *Sharded[K, V]) Keys() []K {
	keys := make([]K, 0)
	for _, shard := range c.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}

// Purge clears all entries from the cache by calling Purge on every shard.
func (c *Sharded[K, V]) Purge() {
	for _, shard := range c.shards {
		shard.Purge()
	}
}
