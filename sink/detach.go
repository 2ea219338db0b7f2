package sink

import (
	"context"
	"time"
)

// detachedContext carries the values of a parent context (trace span, etc.)
// without inheriting its cancellation or deadline, so work started under it
// cannot be abandoned by the caller that created the parent (spec.md §9's
// "disable the cancellation token after append" strategy).
type detachedContext struct {
	parent context.Context
}

func detach(parent context.Context) context.Context {
	return detachedContext{parent: parent}
}

func (detachedContext) Deadline() (time.Time, bool)   { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}         { return nil }
func (detachedContext) Err() error                    { return nil }
func (d detachedContext) Value(key interface{}) interface{} { return d.parent.Value(key) }
