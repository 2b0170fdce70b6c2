// Pomelo caches values loaded through a caller-supplied retriever so repeated lookups for the same
// key avoid repeated calls to a slow backing source. The cache is bounded: once it holds more
// entries than its fixed capacity, the least recently used entry is evicted. On a miss, the
// configured synchronization mode decides whether concurrent loads of the same key run redundantly,
// are serialized per key, or are serialized across the whole cache.

package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/nobletooth/pomelo/pkg/utils"
	"golang.org/x/sync/semaphore"
)

// SyncMode selects how concurrent misses for the same key are coordinated. The mode is fixed for
// the cache's lifetime.
type SyncMode uint8

const (
	// SyncPerKey serializes loads per key: at most one retriever call is in flight for any single
	// key while unrelated keys load concurrently. This is the default and the safest
	// general-purpose choice.
	SyncPerKey SyncMode = iota
	// SyncNone performs no coordination across concurrent misses. Two goroutines missing on the
	// same key may both invoke the retriever; the first successful insertion wins and the other
	// loaded value is discarded. This trades redundant work for minimal lock contention.
	SyncNone
	// SyncSerial serializes every retrieval past the fast-path hit behind one cache-wide lock.
	// Required when the retriever itself is not safe for any concurrent invocation.
	SyncSerial
)

var allSyncModes = []SyncMode{SyncPerKey, SyncNone, SyncSerial}

func (m SyncMode) String() string {
	switch m {
	case SyncPerKey:
		return "per_key"
	case SyncNone:
		return "none"
	case SyncSerial:
		return "serial"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseSyncMode converts a mode name (as accepted by the -sync_mode flag) to a SyncMode.
func ParseSyncMode(name string) (SyncMode, error) {
	for _, mode := range allSyncModes {
		if mode.String() == name {
			return mode, nil
		}
	}
	return SyncPerKey, fmt.Errorf("unknown sync mode %q", name)
}

// Cache is a bounded, read-through LRU cache. A miss invokes the retriever and stores the loaded
// value, subject to LRU eviction. All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	mode      SyncMode
	retriever Retriever[K, V]
	store     *lruStore[K, V]
	// mux guards the store. It is held for the full duration of every check-then-act sequence
	// against the store and never across a retriever call.
	mux   sync.Mutex
	locks *keyLockTable[K]
	// serial is the cache-wide lock for SyncSerial. A weighted semaphore instead of a plain mutex
	// so a caller blocked behind a slow load can still be cancelled through its context.
	serial *semaphore.Weighted
	// evictionCallback is an optional callback run after an entry is evicted, outside the store
	// mutex. It must not call back into the cache from the same goroutine chain that expects the
	// evicted entry to still be present.
	evictionCallback func(K, V)
}

var _ Layer[int, int] = (*Cache[int, int])(nil)

// New is the constructor for Cache. The capacity is fixed for the cache's lifetime and must be
// positive. The eviction callback may be nil.
func New[K comparable, V any](capacity int, retriever Retriever[K, V], mode SyncMode,
	evictionCallback func(K, V)) *Cache[K, V] {
	if retriever == nil {
		utils.RaiseInvariant("cache", "nil_retriever", "A nil retriever has been given to the cache.")
		retriever = func(ctx context.Context, key K) (V, error) {
			return *new(V), fmt.Errorf("no retriever configured for key %v", key)
		}
	}
	if mode != SyncPerKey && mode != SyncNone && mode != SyncSerial {
		utils.RaiseInvariant("cache", "unknown_sync_mode",
			"An unknown sync mode has been given to the cache.", "mode", mode)
		mode = SyncPerKey
	}
	pomelo := &Cache[K, V]{
		mode:             mode,
		retriever:        retriever,
		store:            newLRUStore[K, V](capacity),
		evictionCallback: evictionCallback,
	}
	switch mode {
	case SyncPerKey:
		pomelo.locks = newKeyLockTable[K]()
	case SyncSerial:
		pomelo.serial = semaphore.NewWeighted(1)
	}
	return pomelo
}

// Get returns the cached value for key, loading it through the retriever on a miss. Cancellation of
// ctx while blocked (on another goroutine's load, on the cache-wide serial lock, or inside the
// retriever) returns the context's error; a retriever failure is returned as a RetrieveError and is
// never cached, so the next caller gets a fresh attempt.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	switch c.mode {
	case SyncNone:
		return c.getUnsynced(ctx, key)
	case SyncSerial:
		return c.getSerial(ctx, key)
	default:
		return c.getPerKey(ctx, key)
	}
}

// getUnsynced is the SyncNone strategy: retrieve without holding any lock and let the first
// successful insertion win. Concurrent callers missing on the same key do redundant work on
// purpose; that is the accepted cost of never blocking one key's load on another caller.
func (c *Cache[K, V]) getUnsynced(ctx context.Context, key K) (V, error) {
	if value, found := c.lookup(key); found {
		return value, nil
	}
	value, err := c.load(ctx, key)
	if err != nil {
		return *new(V), err
	}
	// Re-check under the store mutex: another goroutine may have inserted a value for this key
	// while we were loading. The existing value wins and ours is discarded.
	c.mux.Lock()
	if existing, found := c.store.get(key); found {
		c.mux.Unlock()
		cacheDiscardedLoads.Inc()
		return existing, nil
	}
	evictedKey, evictedValue, evicted := c.store.put(key, value)
	c.mux.Unlock()
	c.reportEviction(evictedKey, evictedValue, evicted)
	return value, nil
}

// getPerKey is the SyncPerKey strategy: an explicit wait / re-check / retry loop around the key
// lock table, so a waiter that wakes up to an absent value (the loader failed) retries from the
// top instead of recursing or silently returning nothing.
func (c *Cache[K, V]) getPerKey(ctx context.Context, key K) (V, error) {
	for {
		if value, found := c.lookup(key); found {
			return value, nil
		}
		token, loader := c.locks.tryAcquire(key)
		if loader {
			return c.loadAndStore(ctx, key)
		}
		// Another goroutine is loading this key; wait for its token to be closed.
		select {
		case <-token:
			// The loader finished. On success the value is already in the store and the next
			// lookup hits; on failure we race to become the new loader.
		case <-ctx.Done():
			return *new(V), ctx.Err()
		}
	}
}

// loadAndStore runs the loader side of SyncPerKey. The key lock is released on every exit path,
// otherwise waiters would block forever; the deferred release runs after the store insert, so a
// waiter that wakes never finds a successfully loaded value missing.
func (c *Cache[K, V]) loadAndStore(ctx context.Context, key K) (V, error) {
	defer c.locks.release(key)
	value, err := c.load(ctx, key)
	if err != nil {
		return *new(V), err
	}
	c.insert(key, value)
	return value, nil
}

// getSerial is the SyncSerial strategy: the whole check / retrieve / store sequence runs behind the
// cache-wide lock, so no two retriever calls ever overlap, for any keys.
func (c *Cache[K, V]) getSerial(ctx context.Context, key K) (V, error) {
	if err := c.serial.Acquire(ctx, 1); err != nil {
		return *new(V), err
	}
	defer c.serial.Release(1)

	if value, found := c.lookup(key); found {
		return value, nil
	}
	value, err := c.load(ctx, key)
	if err != nil {
		return *new(V), err
	}
	c.insert(key, value)
	return value, nil
}

// load invokes the retriever for key. The store mutex must not be held by the caller; the
// retriever may block indefinitely.
func (c *Cache[K, V]) load(ctx context.Context, key K) (V, error) {
	value, err := invokeRetriever(ctx, c.retriever, key)
	if err != nil {
		cacheLoads.WithLabelValues("error").Inc()
		return *new(V), err
	}
	cacheLoads.WithLabelValues("ok").Inc()
	return value, nil
}

// lookup checks the store for key under the store mutex and records the hit / miss.
func (c *Cache[K, V]) lookup(key K) (V, bool /*found*/) {
	c.mux.Lock()
	value, found := c.store.get(key)
	c.mux.Unlock()
	if found {
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}
	return value, found
}

// insert writes a loaded value into the store under the store mutex and reports any eviction.
func (c *Cache[K, V]) insert(key K, value V) {
	c.mux.Lock()
	evictedKey, evictedValue, evicted := c.store.put(key, value)
	c.mux.Unlock()
	c.reportEviction(evictedKey, evictedValue, evicted)
}

// reportEviction counts an eviction and runs the eviction callback outside the store mutex.
func (c *Cache[K, V]) reportEviction(evictedKey K, evictedValue V, evicted bool) {
	if !evicted {
		return
	}
	cacheEvictions.Inc()
	if c.evictionCallback != nil {
		c.evictionCallback(evictedKey, evictedValue)
	}
}

// Len returns the current number of cached entries. The count is momentarily consistent; in-flight
// loads may change it immediately after.
func (c *Cache[K, V]) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.store.len()
}

// Keys returns all cached keys ordered from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.store.keys()
}

// Purge removes all cached entries. In-flight loads are not affected; they complete and may
// re-populate the cache with values loaded before the purge. That race is accepted.
func (c *Cache[K, V]) Purge() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.store.purge()
}

// Capacity returns the fixed capacity the cache was constructed with.
func (c *Cache[K, V]) Capacity() int {
	return c.store.capacity
}

// Mode returns the synchronization mode the cache was constructed with.
func (c *Cache[K, V]) Mode() SyncMode {
	return c.mode
}
