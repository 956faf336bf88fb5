// Package locks provides per-key serialization for write paths that must
// check state and then act on it. SQLite has no exclusion constraints, so
// the check and the write have to happen under the same lock to keep two
// concurrent requests from both seeing the same stale state.
package locks

import "sync"

// Keyed hands out one mutex per int64 key. Mutexes are created lazily and
// never released; the key space (courts, reservations) is small.
type Keyed struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *Keyed) Lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
