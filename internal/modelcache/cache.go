// Package modelcache holds expensive handles, such as OCR models, that are
// loaded once per key on first use and reused until Close.
package modelcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("model cache closed")

// Loader builds the value for a key.
type Loader[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	mu     sync.Mutex
	value  T
	loaded bool
}

// Cache maps keys to lazily loaded values. Concurrent Loads for the same key
// run the loader once; a failed load is not cached and the next Load retries.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	closed  bool
	logger  *zap.Logger
}

// New creates an empty Cache.
func New[T any](logger *zap.Logger) *Cache[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache[T]{entries: make(map[string]*entry[T]), logger: logger}
}

// Load returns the value for key, calling load when it is not cached yet.
func (c *Cache[T]) Load(ctx context.Context, key string, load Loader[T]) (T, error) {
	var zero T
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.value, nil
	}
	v, err := load(ctx)
	if err != nil {
		return zero, fmt.Errorf("load model %q: %w", key, err)
	}
	e.value, e.loaded = v, true
	c.logger.Info("model loaded", zap.String("key", key))
	return v, nil
}

// Keys lists the keys with a loaded value.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	entries := make(map[string]*entry[T], len(c.entries))
	for k, e := range c.entries {
		entries[k] = e
	}
	c.mu.Unlock()

	keys := make([]string, 0, len(entries))
	for k, e := range entries {
		e.mu.Lock()
		if e.loaded {
			keys = append(keys, k)
		}
		e.mu.Unlock()
	}
	sort.Strings(keys)
	return keys
}

// Close releases every loaded value that implements io.Closer. Later Loads
// fail with ErrClosed.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()

	var errs []error
	for key, e := range entries {
		e.mu.Lock()
		if closer, ok := any(e.value).(io.Closer); ok && e.loaded {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close model %q: %w", key, err))
			}
		}
		e.mu.Unlock()
	}
	return errors.Join(errs...)
}
