package indexer

import (
	"context"
	"sync"
	"sync/atomic"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
// One is held per base for the duration of a folder scan.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// pathLocks serializes work per key. Entries are dropped once no goroutine
// holds or waits on them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	ch   chan struct{}
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// Lock blocks until key is free or ctx is done
func (p *pathLocks) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pathLock{ch: make(chan struct{}, 1)}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				p.release(key, l)
			})
		}, nil
	case <-ctx.Done():
		p.release(key, l)
		return nil, ctx.Err()
	}
}

func (p *pathLocks) release(key string, l *pathLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, key)
	}
}

// Len returns the number of live keys
func (p *pathLocks) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
