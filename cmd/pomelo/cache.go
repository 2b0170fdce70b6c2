// Builds the cache layer serving the Redis front door. Cache is enabled by default but users may
// decide to disable it or adjust its capacity, shard count and miss coordination mode.

package main

import (
	"flag"
	"fmt"
	"runtime"

	"github.com/nobletooth/pomelo/pkg/cache"
	"github.com/nobletooth/pomelo/pkg/source"
)

var (
	cacheEnabled  = flag.Bool("enable_cache", true, "Enable the read-through cache.")
	cacheCapacity = flag.Int("cache_capacity", 1024,
		"The maximum number of entries to keep per cache shard; 0 or negative disables the cache.")
	cacheShardCount = flag.Int("cache_shard_count", runtime.NumCPU(),
		"The number of shards to split the cache into.")
	cacheSyncMode = flag.String("cache_sync_mode", cache.SyncPerKey.String(),
		"How concurrent misses for the same key are coordinated: per_key/none/serial.")
	sourceDir = flag.String("source_dir", "./data", "Directory holding the backing source files.")
)

// newCacheLayer builds the cache layer according to configured flags, wrapping a directory source.
func newCacheLayer() (cache.Layer[string, []byte], error) {
	dirSource, err := source.NewDir(*sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open source directory: %w", err)
	}
	retriever := cache.Retriever[string, []byte](dirSource.Retrieve)

	if !*cacheEnabled || *cacheCapacity <= 0 {
		return cache.NewNoOp(retriever), nil
	}
	mode, err := cache.ParseSyncMode(*cacheSyncMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse -cache_sync_mode: %w", err)
	}
	newCache := func() *cache.Cache[string, []byte] {
		return cache.New(*cacheCapacity, retriever, mode, nil /*evictionCallback*/)
	}
	// Serial mode needs one global lock; sharding would break its no-overlap guarantee.
	if *cacheShardCount > 1 && mode != cache.SyncSerial {
		return cache.NewSharded(newCache, *cacheShardCount), nil
	}
	return newCache(), nil
}
