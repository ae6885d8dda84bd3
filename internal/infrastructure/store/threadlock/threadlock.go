// Package threadlock provides per-key mutual exclusion that honours context
// cancellation while waiting.
package threadlock

import (
	"context"
	"sync"
)

type entry struct {
	sem     chan struct{}
	waiters int
}

type Locks[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

func New[K comparable]() *Locks[K] {
	return &Locks[K]{entries: make(map[K]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases the
// key and must be called exactly once.
func (l *Locks[K]) Lock(ctx context.Context, key K) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.waiters++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *Locks[K]) release(key K, e *entry, held bool) {
	if held {
		<-e.sem
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.waiters--
	if e.waiters == 0 {
		delete(l.entries, key)
	}
}
