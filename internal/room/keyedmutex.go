package room

import "sync"

type mutexEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes operations per room code while letting operations on
// different codes proceed concurrently. Entries are refcounted so idle codes
// do not accumulate.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*mutexEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*mutexEntry)}
}

// Lock acquires the mutex for key and returns the matching unlock function.
// The unlock must be deferred by the caller so every exit path releases it.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &mutexEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
