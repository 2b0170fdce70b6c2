package cache

import (
	"context"
	"errors"
	"fmt"
)

// Retriever loads the value for a missing key. It may block for as long as the context allows and
// may fail; a failed load is reported to the caller and never cached. Whether a Retriever must be
// safe for concurrent invocation is declared through the cache's SyncMode: SyncNone and SyncPerKey
// assume concurrent calls for different keys are safe, SyncSerial guarantees no two calls overlap.
type Retriever[K comparable, V any] func(ctx context.Context, key K) (V, error)

// RetrieveError wraps a retriever failure so callers can tell "key not retrievable" apart from a
// cache-internal failure. Unwrap exposes the retriever's original error for errors.Is / errors.As.
type RetrieveError struct {
	Key any
	Err error
}

func (e *RetrieveError) Error() string {
	return fmt.Sprintf("failed to retrieve key %v: %v", e.Key, e.Err)
}

func (e *RetrieveError) Unwrap() error {
	return e.Err
}

// invokeRetriever calls the retriever and normalizes its failure: cancellation errors pass through
// untouched while every other failure is wrapped in a RetrieveError carrying the key.
func invokeRetriever[K comparable, V any](ctx context.Context, retriever Retriever[K, V], key K) (V, error) {
	value, err := retriever(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return *new(V), err
		}
		return *new(V), &RetrieveError{Key: key, Err: err}
	}
	return value, nil
}
