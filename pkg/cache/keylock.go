// The key lock table serializes concurrent loads of the same key for the per-key synchronization
// mode. A lock token lives in the table only while a retrieval for its key is in flight; the
// goroutine that installed a token removes it exactly once when its retrieval completes, whether
// the retrieval succeeded or failed.

package cache

import (
	"sync"

	"github.com/nobletooth/pomelo/pkg/utils"
)

// keyLockTable maps a key to the lock token of its in-flight load. The table is owned by a single
// Cache instance and shares its lifetime.
type keyLockTable[K comparable] struct {
	mux sync.Mutex // Guards inflight only; never held across a retrieval.
	// inflight holds one token per key with an in-flight load. The token channel is closed by the
	// loader on release, which wakes every waiter selecting on it.
	inflight map[K]chan struct{}
}

// newKeyLockTable is the constructor for keyLockTable.
func newKeyLockTable[K comparable]() *keyLockTable[K] {
	return &keyLockTable[K]{inflight: make(map[K]chan struct{})}
}

// tryAcquire installs a lock token for key if none exists. The boolean result reports whether the
// caller became the loader for the key; when false, the returned token belongs to another loader
// and the caller should wait for it to be closed.
func (t *keyLockTable[K]) tryAcquire(key K) (chan struct{}, bool /*loader*/) {
	t.mux.Lock()
	defer t.mux.Unlock()
	if token, inFlight := t.inflight[key]; inFlight {
		return token, false
	}
	token := make(chan struct{})
	t.inflight[key] = token
	return token, true
}

// release removes the key's token from the table and closes it, making every waiter runnable.
// Only the goroutine that acquired the token may release it.
func (t *keyLockTable[K]) release(key K) {
	t.mux.Lock()
	token, held := t.inflight[key]
	delete(t.inflight, key)
	t.mux.Unlock()

	if !held {
		utils.RaiseInvariant("cache", "released_unheld_key_lock",
			"A key lock was released without being held.", "key", key)
		return
	}
	close(token)
}

// len returns the number of keys with an in-flight load.
func (t *keyLockTable[K]) len() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.inflight)
}
