// This module provides an interface on read-through caching, making the single cache, the sharded
// cache and the disabled (pass-through) cache have the same API.

package cache

import "context"

// Layer defines the interface for a generic read-through cache. This allows different
// implementations (bounded LRU, sharded, pass-through) to be swapped behind one API.
type Layer[K comparable, V any] interface {
	// Get returns the value for key, loading it through the retriever on a miss.
	Get(ctx context.Context, key K) (V, error)
	Len() int   // Returns the current number of cached entries.
	Keys() []K  // Returns a slice of all keys currently in the cache.
	Purge()     // Removes all cached entries.
}

// NoOp is a cache layer that stores nothing and forwards every lookup straight to the retriever.
// It is used when caching is disabled.
type NoOp[K comparable, V any] struct { // Implements Layer.
	retriever Retriever[K, V]
}

var _ Layer[int, int] = (*NoOp[int, int])(nil)

// NewNoOp returns a pass-through cache layer around the given retriever.
func NewNoOp[K comparable, V any](retriever Retriever[K, V]) *NoOp[K, V] {
	return &NoOp[K, V]{retriever: retriever}
}

// Get always invokes the retriever; nothing is ever cached.
func (n *NoOp[K, V]) Get(ctx context.Context, key K) (V, error) {
	return invokeRetriever(ctx, n.retriever, key)
}

// Len always returns 0, as there are no entries stored.
func (n *NoOp[K, V]) Len() int {
	return 0
}

// Keys always returns nil, as there are no keys stored.
func (n *NoOp[K, V]) Keys() []K {
	return nil
}

// Purge does nothing, as there are no entries to remove.
func (n *NoOp[K, V]) Purge() {}
