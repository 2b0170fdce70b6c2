// The bounded LRU store is a fixed-capacity key to value table that tracks access order and evicts
// the least recently used entry when capacity is exceeded. The store itself is not thread-safe; the
// synchronization strategies in Cache hold the store mutex across every check-then-act sequence and
// never hold it across a retriever call.

package cache

import (
	"github.com/nobletooth/pomelo/pkg/utils"
)

// storeEntry pairs a key with its cached value inside the recency list, so evicting the tail node
// can also remove the matching index entry.
type storeEntry[K comparable, V any] struct {
	key   K
	value V
}

// lruStore is an ordered map of fixed capacity. The recency list's front holds the most recently
// used entry and its back holds the eviction victim.
type lruStore[K comparable, V any] struct {
	capacity int
	index    map[K]*linkedListNode[storeEntry[K, V]] // Provides lookup for an entry by its key.
	order    *linkedList[storeEntry[K, V]]
}

// newLRUStore is the constructor for lruStore. The capacity is fixed for the store's lifetime.
func newLRUStore[K comparable, V any](capacity int) *lruStore[K, V] {
	if capacity <= 0 {
		utils.RaiseInvariant("cache", "non_positive_store_capacity",
			"Invalid capacity has been given to the LRU store.", "capacity", capacity)
		capacity = 1
	}
	return &lruStore[K, V]{
		capacity: capacity,
		index:    make(map[K]*linkedListNode[storeEntry[K, V]], capacity),
		order:    new(linkedList[storeEntry[K, V]]),
	}
}

// get returns the value stored for key and marks the entry most recently used. The boolean result
// distinguishes a missing mapping from a mapping to the value type's zero value.
func (s *lruStore[K, V]) get(key K) (V, bool /*found*/) {
	node, found := s.index[key]
	if !found {
		return *new(V), false
	}
	s.order.MoveToFront(node)
	return node.Value.value, true
}

// put inserts or overwrites the value for key. Inserting a new key into a full store evicts exactly
// one entry from the least recently used end, returned so callers can run eviction callbacks after
// releasing the store mutex.
func (s *lruStore[K, V]) put(key K, value V) (evictedKey K, evictedValue V, evicted bool) {
	if node, found := s.index[key]; found {
		node.Value.value = value
		s.order.MoveToFront(node)
		return
	}
	if s.order.Len() >= s.capacity {
		victim := s.order.Back()
		s.order.Remove(victim)
		delete(s.index, victim.Value.key)
		evictedKey, evictedValue, evicted = victim.Value.key, victim.Value.value, true
	}
	s.index[key] = s.order.PushFront(storeEntry[K, V]{key: key, value: value})
	return
}

// len returns the number of entries currently in the store.
func (s *lruStore[K, V]) len() int {
	return s.order.Len()
}

// keys returns all keys ordered from most to least recently used.
func (s *lruStore[K, V]) keys() []K {
	keys := make([]K, 0, s.order.Len())
	for node := s.order.Front(); node != nil; node = node.Next() {
		keys = append(keys, node.Value.key)
	}
	return keys
}

// purge removes all entries from the store.
func (s *lruStore[K, V]) purge() {
	s.index = make(map[K]*linkedListNode[storeEntry[K, V]], s.capacity)
	s.order = new(linkedList[storeEntry[K, V]])
}
