package database

import "sync"

// keyedLocks hands out one mutex per key. Different keys never block each other.
type keyedLocks struct {
	locks sync.Map
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: sync.Map{}}
}

// Lock blocks until the key is free and returns the matching unlock.
func (l *keyedLocks) Lock(key string) func() {
	value, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

// Lock serializes the callers of one key within this process, across every user of the gateway.
// Callers on other processes are kept apart by the locking reads of the session instead.
func (g *Gateway) Lock(key string) func() {
	return g.locks.Lock(key)
}
