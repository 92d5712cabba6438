package convstore

import "sync"

// KeyedMutex provides per-key mutual exclusion. The dialogue engine locks the
// sender's phone number around the get/compute/put sequence so two
// near-simultaneous messages from the same sender are applied as a strict
// sequence, while messages from different senders proceed concurrently.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the mutex for key. The entry is removed once no goroutine
// holds or waits on it, so the map stays bounded by in-flight keys.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
	}
	km.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}
