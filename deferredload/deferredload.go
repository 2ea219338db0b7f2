// Package deferredload implements the lazily-resolved, background-prefetched
// metadata slot described in spec.md's Deferred-load resolver (C3): a value
// that begins loading on a jittered background timer so that persist-time
// catalog lookups do not all fire at once, but which any caller can force to
// resolve immediately if it arrives first.
package deferredload

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Loader fetches the value a DeferredLoad guards. Implementations are
// expected to retry internally (e.g. via cenkalti/backoff) since C3's
// purpose is to absorb catalog latency, not surface it.
type Loader[T any] func(ctx context.Context) (T, error)

// state mirrors the NotStarted/Loading/Loaded tagged union from spec.md §9.
type state int

const (
	stateNotStarted state = iota
	stateLoading
	stateLoaded
)

// DeferredLoad is a single-writer, many-reader slot. The zero value is not
// usable; construct with New.
type DeferredLoad[T any] struct {
	mu    sync.Mutex
	st    state
	done  chan struct{}
	value T
	err   error

	load Loader[T]
}

// New starts a background goroutine that sleeps a uniform-random duration in
// [0, maxJitter) before running load and storing its result. Callers of
// Get that arrive before the background fetch starts trigger it themselves
// (synchronously, from within Get); callers that arrive while it is already
// running join the same in-flight fetch.
func New[T any](ctx context.Context, maxJitter time.Duration, load Loader[T]) *DeferredLoad[T] {
	d := &DeferredLoad[T]{
		st:   stateNotStarted,
		done: make(chan struct{}),
		load: load,
	}
	go d.backgroundPrefetch(ctx, maxJitter)
	return d
}

func (d *DeferredLoad[T]) backgroundPrefetch(ctx context.Context, maxJitter time.Duration) {
	var jitter time.Duration
	if maxJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(maxJitter)))
	}
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	d.startLoad(ctx)
}

// startLoad transitions NotStarted -> Loading and runs load, or is a no-op if
// another caller already made that transition.
func (d *DeferredLoad[T]) startLoad(ctx context.Context) {
	d.mu.Lock()
	if d.st != stateNotStarted {
		d.mu.Unlock()
		return
	}
	d.st = stateLoading
	d.mu.Unlock()

	value, err := d.load(ctx)

	d.mu.Lock()
	d.value, d.err = value, err
	d.st = stateLoaded
	close(d.done)
	d.mu.Unlock()
}

// Get returns the resolved value, starting the load synchronously if the
// background task has not yet begun, or blocking on the in-flight fetch
// otherwise. It is safe to call from multiple goroutines.
func (d *DeferredLoad[T]) Get(ctx context.Context) (T, error) {
	d.mu.Lock()
	switch d.st {
	case stateLoaded:
		value, err := d.value, d.err
		d.mu.Unlock()
		return value, err
	case stateNotStarted:
		d.mu.Unlock()
		d.startLoad(ctx)
	default:
		d.mu.Unlock()
	}

	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Resolved reports whether the value is available without blocking.
func (d *DeferredLoad[T]) Resolved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st == stateLoaded
}
