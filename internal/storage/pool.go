package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// MetadataFile is the metadata database filename inside a base directory
const MetadataFile = "cache.db"

// ErrPoolClosed is returned by Get after Close
var ErrPoolClosed = errors.New("pool closed")

// OpenFunc opens the handle for one knowledge base
type OpenFunc[T io.Closer] func(base string) (T, error)

// Pool caches one open handle per knowledge base. Handles are opened on
// first use and stay open until evicted or the pool is closed.
type Pool[T io.Closer] struct {
	mu      sync.Mutex
	open    OpenFunc[T]
	handles map[string]T
	closed  bool
}

// NewPool creates a pool that opens handles with open
func NewPool[T io.Closer](open OpenFunc[T]) *Pool[T] {
	return &Pool[T]{
		open:    open,
		handles: make(map[string]T),
	}
}

// Get returns the handle for base, opening it if needed
func (p *Pool[T]) Get(base string) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	if p.closed {
		return zero, ErrPoolClosed
	}
	if h, ok := p.handles[base]; ok {
		return h, nil
	}

	h, err := p.open(base)
	if err != nil {
		return zero, err
	}
	p.handles[base] = h
	return h, nil
}

// Evict closes and forgets the handle for base, if one is open
func (p *Pool[T]) Evict(base string) error {
	p.mu.Lock()
	h, ok := p.handles[base]
	delete(p.handles, base)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return h.Close()
}

// Len returns the number of open handles
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes every open handle. Further Get calls fail.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	for base, h := range p.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", base, err))
		}
		delete(p.handles, base)
	}
	return errors.Join(errs...)
}

// OpenBase returns an OpenFunc that opens <dataDir>/<base>/cache.db,
// creating the base directory when missing
func OpenBase(dataDir string) OpenFunc[Storage] {
	return func(base string) (Storage, error) {
		dir := filepath.Join(dataDir, base)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
		store, err := NewSQLiteStorage(filepath.Join(dir, MetadataFile), base)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
