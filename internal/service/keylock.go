// Package service contains the business logic layer.
package service

import "sync"

// keyedMutex serializes operations that share a logical key, such as an
// unordered user pair or a conversation id. Entries are never evicted; the
// key space is bounded by the number of live entities in practice.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{m: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.m[key]
	if !ok {
		lock = &sync.Mutex{}
		k.m[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
