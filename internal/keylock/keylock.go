// Package keylock serializes signing requests against a single BLS public
// key, so two concurrent requests for the same key can never race past the
// slashing-protection check-then-persist sequence.
package keylock

import (
	"context"
	"sync"
)

// Registry hands out an exclusive, per-key lock backed by a buffered
// channel: acquiring the lock is sending a token into the channel,
// releasing it is draining that token back out. Channels are created
// lazily and never removed, which is acceptable here since the key space
// is bounded by the number of keys the enclave holds.
type Registry struct {
	mu    sync.Mutex
	chans map[string]chan struct{}
}

// NewRegistry constructs an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{chans: make(map[string]chan struct{})}
}

func (r *Registry) getChan(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.chans[key]
	if !ok {
		ch = make(chan struct{}, 1)
		r.chans[key] = ch
	}

	return ch
}

// Lock blocks until the caller holds the exclusive lock for key, or ctx is
// done.
func (r *Registry) Lock(ctx context.Context, key string) error {
	ch := r.getChan(key)

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock for key. Calling Unlock without a matching Lock
// is a no-op rather than a panic, so defers stay simple in callers that
// bail out before acquiring the lock.
func (r *Registry) Unlock(key string) {
	ch := r.getChan(key)

	select {
	case <-ch:
	default:
	}
}

// WithLock runs fn while holding the exclusive lock for key.
func (r *Registry) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := r.Lock(ctx, key); err != nil {
		return err
	}
	defer r.Unlock(key)

	return fn()
}
