package observable

import (
	"reflect"
	"sync/atomic"
	"time"
)

type computedState struct {
	fn    func() any
	equal func(a, b any) bool
	sub   *subscription

	// memo is a deep copy of the last published result. Tree writes mutate
	// containers in place, so the live result cannot serve as the baseline.
	memo        any
	initialized bool

	// computing prevents infinite recursion in circular dependencies.
	computing atomic.Bool
}

// Computed creates a read-only observable whose value is fn's result.
//
// Computed values are lazy: fn first runs when the value is read or a
// listener is registered. After that, every change to a dependency read
// through Get reruns fn. A result equal to the previous one (by
// reflect.DeepEqual, or the WithEquals function) is not published, so
// listeners of the computed do not fire.
//
// Set, Assign, Delete and Toggle on a computed return ErrReadOnly.
func Computed(fn func() any, opts ...Option) *Obs {
	t := newTree(opts...)
	c := &computedState{fn: fn, equal: t.equal}
	c.sub = newSubscription(func(Change) { c.recompute(t) })
	t.computed = c
	t.activate = func() { c.recompute(t) }

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handleLocked(rootID)
}

// WithEquals sets the function a computed uses to decide whether a new
// result differs from the previous one.
func WithEquals(fn func(a, b any) bool) Option {
	return func(t *tree) {
		t.equal = fn
	}
}

func (c *computedState) recompute(t *tree) {
	if c.computing.Swap(true) {
		return
	}
	defer c.computing.Store(false)

	start := time.Now()
	var v any
	deps := Collect(func() {
		v = c.fn()
		if o, ok := v.(*Obs); ok {
			v = o.Get()
		}
	})
	recordCompute(time.Since(start))
	c.sub.update(deps, t)

	if c.initialized && c.equals(c.memo, v) {
		return
	}
	c.initialized = true
	c.memo = deepCopy(v)
	if err := t.apply(rootID, OpSet, v, true); err != nil {
		getLogger().Warn("observable computed result not stored", "tree", t.name, "error", err)
	}
}

func (c *computedState) equals(a, b any) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// Dependencies returns how many dependencies the computed at o is currently
// subscribed to. It is zero before activation and for plain observables.
func (o *Obs) Dependencies() int {
	if o.t.computed == nil {
		return 0
	}
	return o.t.computed.sub.size()
}
